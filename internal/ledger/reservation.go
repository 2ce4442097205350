package ledger

import (
	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// BundleReservation is one bundle item joined with its bundle.
type BundleReservation struct {
	BundleID       uuid.UUID          `gorm:"column:bundle_id"`
	LotID          uuid.UUID          `gorm:"column:lot_id"`
	BundleStatus   enums.BundleStatus `gorm:"column:bundle_status"`
	BundleQuantity int                `gorm:"column:bundle_quantity"`
	CardsNeeded    int                `gorm:"column:cards_needed"`
}

// Reserved is the number of lot units the item holds back, zero unless the
// bundle is active.
func (r BundleReservation) Reserved() int {
	if r.BundleStatus != enums.BundleStatusActive {
		return 0
	}
	return r.BundleQuantity * r.CardsNeeded
}

// ReservedByLot sums reservations per lot, leaving out excludeBundleID when set.
func ReservedByLot(rows []BundleReservation, excludeBundleID *uuid.UUID) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		if excludeBundleID != nil && row.BundleID == *excludeBundleID {
			continue
		}
		if reserved := row.Reserved(); reserved > 0 {
			out[row.LotID] += reserved
		}
	}
	return out
}
