package sales

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
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

// UpsertBuyer returns the buyer for (platform, handle), creating it when absent.
func (r *Repository) UpsertBuyer(ctx context.Context, platform, handle string) (*models.Buyer, error) {
	candidate := models.Buyer{Platform: platform, Handle: strings.TrimSpace(handle)}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, err
	}
	var buyer models.Buyer
	err := r.db.WithContext(ctx).
		Where("platform = ? AND handle = ?", candidate.Platform, candidate.Handle).
		First(&buyer).Error
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *Repository) FindBuyer(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&buyer).Error; err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *Repository) CreateOrder(ctx context.Context, order *models.SalesOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *Repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	var order models.SalesOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.SalesItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) CreateAllocations(ctx context.Context, rows []models.PurchaseAllocation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *Repository) ItemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.SalesItem, error) {
	var items []models.SalesItem
	err := r.db.WithContext(ctx).
		Where("sales_order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *Repository) AllocationsForItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.PurchaseAllocation, error) {
	var rows []models.PurchaseAllocation
	if len(itemIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("sales_item_id IN ?", itemIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// HistoryForLots groups purchase history by lot, oldest entry first.
func (r *Repository) HistoryForLots(ctx context.Context, lotIDs []uuid.UUID) (map[uuid.UUID][]models.LotPurchaseHistory, error) {
	out := make(map[uuid.UUID][]models.LotPurchaseHistory, len(lotIDs))
	if len(lotIDs) == 0 {
		return out, nil
	}
	var rows []models.LotPurchaseHistory
	err := r.db.WithContext(ctx).
		Where("lot_id IN ?", lotIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.LotID] = append(out[row.LotID], row)
	}
	return out, nil
}
