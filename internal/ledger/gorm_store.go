package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// GormStore binds Store to gorm. Row locks use SELECT ... FOR UPDATE, which
// the sqlite dialect drops; sqlite serialises writers on its own.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &GormStore{db: tx}
}

func (s *GormStore) FindLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error) {
	var lots []models.Lot
	if len(ids) == 0 {
		return lots, nil
	}
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&lots).Error
	return lots, err
}

// LockLots locks the lots in ascending id order so concurrent mutations
// touching overlapping lots cannot deadlock.
func (s *GormStore) LockLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error) {
	var lots []models.Lot
	if len(ids) == 0 {
		return lots, nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sortedIDs(ids)).
		Order("id ASC").
		Find(&lots).Error
	return lots, err
}

func (s *GormStore) LockBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&bundle).Error
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *GormStore) CreateLot(ctx context.Context, lot *models.Lot) error {
	return s.db.WithContext(ctx).Create(lot).Error
}

func (s *GormStore) UpdateLot(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Lot{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteLots removes lots with their listings, photos and history. The
// postgres schema cascades these too; sqlite test schemas carry no FKs.
func (s *GormStore) DeleteLots(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)
	if err := db.Where("lot_id IN ?", ids).Delete(&models.Listing{}).Error; err != nil {
		return err
	}
	if err := db.Where("lot_id IN ?", ids).Delete(&models.LotPhoto{}).Error; err != nil {
		return err
	}
	if err := db.Where("lot_id IN ?", ids).Delete(&models.LotPurchaseHistory{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&models.Lot{}).Error
}

func (s *GormStore) SoldByLot(ctx context.Context, lotIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(lotIDs))
	if len(lotIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		LotID uuid.UUID `gorm:"column:lot_id"`
		Sold  int       `gorm:"column:sold"`
	}
	err := s.db.WithContext(ctx).
		Model(&models.SalesItem{}).
		Select("lot_id, COALESCE(SUM(qty), 0) AS sold").
		Where("lot_id IN ?", lotIDs).
		Group("lot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.LotID] = row.Sold
	}
	return out, nil
}

func (s *GormStore) ReservationsForLots(ctx context.Context, lotIDs []uuid.UUID) ([]BundleReservation, error) {
	var rows []BundleReservation
	if len(lotIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Table("bundle_items AS bi").
		Select("bi.bundle_id, bi.lot_id, b.status AS bundle_status, b.quantity AS bundle_quantity, bi.quantity AS cards_needed").
		Joins("JOIN bundles AS b ON b.id = bi.bundle_id").
		Where("bi.lot_id IN ? AND b.status = ?", lotIDs, enums.BundleStatusActive).
		Scan(&rows).Error
	return rows, err
}

func (s *GormStore) ListHistory(ctx context.Context, lotIDs []uuid.UUID) ([]models.LotPurchaseHistory, error) {
	var rows []models.LotPurchaseHistory
	if len(lotIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("lot_id IN ?", lotIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CreateHistory(ctx context.Context, rows []models.LotPurchaseHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *GormStore) UpdateHistoryQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	return s.db.WithContext(ctx).
		Model(&models.LotPurchaseHistory{}).
		Where("id = ?", id).
		Update("quantity", quantity).Error
}

func (s *GormStore) DeleteHistory(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.LotPurchaseHistory{}).Error
}

func (s *GormStore) ListPhotos(ctx context.Context, lotIDs []uuid.UUID) ([]models.LotPhoto, error) {
	var rows []models.LotPhoto
	if len(lotIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("lot_id IN ?", lotIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CreatePhotos(ctx context.Context, rows []models.LotPhoto) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func (s *GormStore) ReassignPhotos(ctx context.Context, ids []uuid.UUID, lotID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.LotPhoto{}).
		Where("id IN ?", ids).
		Update("lot_id", lotID).Error
}

func (s *GormStore) DeletePhotos(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.LotPhoto{}).Error
}

func (s *GormStore) ListBundleItemsForLots(ctx context.Context, lotIDs []uuid.UUID) ([]models.BundleItem, error) {
	var rows []models.BundleItem
	if len(lotIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("lot_id IN ?", lotIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) UpdateBundleItem(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.BundleItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *GormStore) DeleteBundleItems(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.BundleItem{}).Error
}
