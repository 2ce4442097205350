package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
)

// Store is the persistence the ledger reads and mutates. Lock* methods take
// row locks and must be called on a store bound to a transaction.
type Store interface {
	WithTx(tx *gorm.DB) Store

	FindLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error)
	LockLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error)
	LockBundle(ctx context.Context, id uuid.UUID) (*models.Bundle, error)
	CreateLot(ctx context.Context, lot *models.Lot) error
	UpdateLot(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteLots(ctx context.Context, ids []uuid.UUID) error

	SoldByLot(ctx context.Context, lotIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ReservationsForLots(ctx context.Context, lotIDs []uuid.UUID) ([]BundleReservation, error)

	ListHistory(ctx context.Context, lotIDs []uuid.UUID) ([]models.LotPurchaseHistory, error)
	CreateHistory(ctx context.Context, rows []models.LotPurchaseHistory) error
	UpdateHistoryQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	DeleteHistory(ctx context.Context, ids []uuid.UUID) error

	ListPhotos(ctx context.Context, lotIDs []uuid.UUID) ([]models.LotPhoto, error)
	CreatePhotos(ctx context.Context, rows []models.LotPhoto) error
	ReassignPhotos(ctx context.Context, ids []uuid.UUID, lotID uuid.UUID) error
	DeletePhotos(ctx context.Context, ids []uuid.UUID) error

	ListBundleItemsForLots(ctx context.Context, lotIDs []uuid.UUID) ([]models.BundleItem, error)
	UpdateBundleItem(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteBundleItems(ctx context.Context, ids []uuid.UUID) error
}
