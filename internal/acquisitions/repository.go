package acquisitions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, acq *models.Acquisition) error {
	return r.db.WithContext(ctx).Create(acq).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Acquisition, error) {
	var acq models.Acquisition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&acq).Error; err != nil {
		return nil, err
	}
	return &acq, nil
}

func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Acquisition, error) {
	var acq models.Acquisition
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&acq).Error
	if err != nil {
		return nil, err
	}
	return &acq, nil
}

// LastPurchaseSKU returns the highest PUR- sku, ordering by length first so
// PUR-1000 sorts after PUR-999. Empty when none exist.
func (r *Repository) LastPurchaseSKU(ctx context.Context) (string, error) {
	var skus []string
	err := r.db.WithContext(ctx).
		Model(&models.Acquisition{}).
		Where("purchase_sku LIKE ?", purchaseSKUPrefix+"%").
		Order("LENGTH(purchase_sku) DESC").
		Order("purchase_sku DESC").
		Limit(1).
		Pluck("purchase_sku", &skus).Error
	if err != nil || len(skus) == 0 {
		return "", err
	}
	return skus[0], nil
}

func (r *Repository) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Acquisition, error) {
	qb := r.db.WithContext(ctx).Model(&models.Acquisition{})
	var rows []models.Acquisition
	err := qb.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error
	return rows, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AcquisitionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Acquisition{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) CreateLot(ctx context.Context, lot *models.Lot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

func (r *Repository) CreateHistory(ctx context.Context, entry *models.LotPurchaseHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// LotSummary counts the lots and units attributed to an acquisition.
func (r *Repository) LotSummary(ctx context.Context, id uuid.UUID) (lots int64, units int64, err error) {
	var row struct {
		Lots  int64 `gorm:"column:lots"`
		Units int64 `gorm:"column:units"`
	}
	err = r.db.WithContext(ctx).
		Model(&models.LotPurchaseHistory{}).
		Select("COUNT(DISTINCT lot_id) AS lots, COALESCE(SUM(quantity), 0) AS units").
		Where("acquisition_id = ?", id).
		Scan(&row).Error
	return row.Lots, row.Units, err
}
