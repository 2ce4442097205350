package bundles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
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

func (r *Repository) Create(ctx context.Context, bundle *models.Bundle) error {
	return r.db.WithContext(ctx).Create(bundle).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bundle).Error; err != nil {
		return nil, err
	}
	return &bundle, nil
}

// LockByID reads the bundle FOR UPDATE.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	var bundle models.Bundle
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&bundle).Error
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (r *Repository) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Bundle, error) {
	qb := r.db.WithContext(ctx).Model(&models.Bundle{})
	var rows []models.Bundle
	err := qb.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error
	return rows, err
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Bundle{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes the bundle and its items.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("bundle_id = ?", id).Delete(&models.BundleItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Bundle{}).Error
}

func (r *Repository) CountOrders(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SalesOrder{}).
		Where("bundle_id = ?", id).
		Count(&count).Error
	return count, err
}

func (r *Repository) Items(ctx context.Context, bundleIDs ...uuid.UUID) ([]models.BundleItem, error) {
	var items []models.BundleItem
	if len(bundleIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("bundle_id IN ?", bundleIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *Repository) FindItem(ctx context.Context, bundleID, itemID uuid.UUID) (*models.BundleItem, error) {
	var item models.BundleItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND bundle_id = ?", itemID, bundleID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItems(ctx context.Context, items []models.BundleItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, cards int) error {
	return r.db.WithContext(ctx).
		Model(&models.BundleItem{}).
		Where("id = ?", itemID).
		Update("quantity", cards).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.BundleItem{}).Error
}
