package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
)

// Rejection describes a mutation that needs more units than a lot has free.
type Rejection struct {
	LotID     uuid.UUID `json:"lot_id"`
	Available int       `json:"available"`
	Needed    int       `json:"needed"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("Insufficient quantity. Available: %d, Needed: %d", r.Available, r.Needed)
}

// AsError converts the rejection into a typed CodeInsufficientQuantity error.
func (r *Rejection) AsError() error {
	if r == nil {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientQuantity, r.Error()).WithDetails(map[string]any{
		"lot_id":    r.LotID,
		"available": r.Available,
		"needed":    r.Needed,
	})
}

// CheckSale rejects a sale of qty units when the lot cannot cover it.
func CheckSale(av Availability, qty int) *Rejection {
	if qty > av.Available {
		return &Rejection{LotID: av.LotID, Available: av.Available, Needed: qty}
	}
	return nil
}

// BundleItemChange is one lot in a proposed bundle shape.
type BundleItemChange struct {
	LotID       uuid.UUID `json:"lot_id"`
	CardsNeeded int       `json:"cards_needed"`
}

// CheckBundleItem bounds bundleQty*cardsNeeded by what the lot has left after
// sales and other bundles. av must exclude the bundle being changed.
func CheckBundleItem(av Availability, bundleQty, cardsNeeded int) *Rejection {
	needed := bundleQty * cardsNeeded
	if needed > av.Available {
		return &Rejection{LotID: av.LotID, Available: av.Available, Needed: needed}
	}
	return nil
}

// CheckBundleChange validates every item against the new bundle quantity and
// returns the first failure in item order.
func CheckBundleChange(bundleQty int, items []BundleItemChange, avail map[uuid.UUID]Availability) *Rejection {
	for _, item := range items {
		av, ok := avail[item.LotID]
		if !ok {
			av = Availability{LotID: item.LotID}
		}
		if rej := CheckBundleItem(av, bundleQty, item.CardsNeeded); rej != nil {
			return rej
		}
	}
	return nil
}

// CheckSplit enforces 1 <= splitQty < available.
func CheckSplit(av Availability, splitQty int) error {
	if splitQty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Split quantity must be at least 1")
	}
	if splitQty >= av.Available {
		return pkgerrors.New(pkgerrors.CodeValidation, "Split quantity must be less than available quantity").
			WithDetails(map[string]any{
				"lot_id":    av.LotID,
				"available": av.Available,
				"requested": splitQty,
			})
	}
	return nil
}

// CheckMerge requires one derived SKU across the lots and no recorded sales.
func CheckMerge(lots []models.Lot, sold map[uuid.UUID]int) error {
	if len(lots) < 2 {
		return pkgerrors.New(pkgerrors.CodeValidation, "At least two lots are required to merge")
	}
	want := sku.Generate(lots[0].CardID, lots[0].Condition, lots[0].Variation)
	for _, lot := range lots[1:] {
		if sku.Generate(lot.CardID, lot.Condition, lot.Variation) != want {
			return pkgerrors.New(pkgerrors.CodeValidation, "All lots must have the same card, condition and variation").
				WithDetails(map[string]any{"expected_sku": want, "lot_id": lot.ID})
		}
	}

	var withSales []uuid.UUID
	for _, lot := range lots {
		if sold[lot.ID] > 0 {
			withSales = append(withSales, lot.ID)
		}
	}
	if len(withSales) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot merge lots with sold items").
			WithDetails(map[string]any{"lot_ids": withSales})
	}
	return nil
}
