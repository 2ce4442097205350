package sales

import (
	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/money"
)

// Allocation attributes sold units to the acquisition they were bought in.
type Allocation struct {
	AcquisitionID uuid.UUID
	Qty           int
}

// Allocate spreads qty over a lot's purchase history in proportion to each
// entry's quantity. Every entry but the last takes the floor of its share;
// the last takes whatever is left. A lot without history falls back to its
// own acquisition, and yields nothing when it has none.
func Allocate(history []models.LotPurchaseHistory, acquisitionID *uuid.UUID, qty int) []Allocation {
	if qty <= 0 {
		return nil
	}
	if len(history) == 0 {
		if acquisitionID == nil {
			return nil
		}
		return []Allocation{{AcquisitionID: *acquisitionID, Qty: qty}}
	}

	total := 0
	for _, entry := range history {
		total += entry.Quantity
	}

	out := make([]Allocation, 0, len(history))
	remaining := qty
	for i, entry := range history {
		if remaining <= 0 {
			break
		}
		share := remaining
		if i < len(history)-1 {
			share, _ = money.Proportion(qty, entry.Quantity, total)
		}
		if share <= 0 {
			continue
		}
		out = append(out, Allocation{AcquisitionID: entry.AcquisitionID, Qty: share})
		remaining -= share
	}
	return out
}
