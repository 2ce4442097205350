package lots

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
)

// ListFilters narrows the inventory listing.
type ListFilters struct {
	Status  *enums.LotStatus
	ForSale *bool
	SKU     string
	CardID  string
}

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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	var lot models.Lot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// List returns up to LimitWithBuffer lots, newest first, after the cursor.
func (r *Repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Lot, error) {
	qb := r.db.WithContext(ctx).Model(&models.Lot{})
	if filters.Status != nil {
		qb = qb.Where("status = ?", *filters.Status)
	}
	if filters.ForSale != nil {
		qb = qb.Where("for_sale = ?", *filters.ForSale)
	}
	if sku := strings.TrimSpace(filters.SKU); sku != "" {
		qb = qb.Where("sku = ?", sku)
	}
	if card := strings.TrimSpace(filters.CardID); card != "" {
		qb = qb.Where("card_id = ?", card)
	}
	var rows []models.Lot
	err := qb.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error
	return rows, err
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Lot{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) CountSalesItems(ctx context.Context, lotID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SalesItem{}).Where("lot_id = ?", lotID).Count(&count).Error
	return count, err
}

func (r *Repository) CountBundleItems(ctx context.Context, lotID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BundleItem{}).Where("lot_id = ?", lotID).Count(&count).Error
	return count, err
}

func (r *Repository) CreatePhoto(ctx context.Context, photo *models.LotPhoto) error {
	return r.db.WithContext(ctx).Create(photo).Error
}

func (r *Repository) ListPhotos(ctx context.Context, lotID uuid.UUID) ([]models.LotPhoto, error) {
	var rows []models.LotPhoto
	err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListHistory(ctx context.Context, lotID uuid.UUID) ([]models.LotPurchaseHistory, error) {
	var rows []models.LotPurchaseHistory
	err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
