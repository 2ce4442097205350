package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

// SaleLine asks to sell Qty units of a lot.
type SaleLine struct {
	LotID uuid.UUID `json:"lot_id" validate:"required"`
	Qty   int       `json:"qty" validate:"required,gt=0"`
}

// BundleChange is a proposed bundle shape. BundleID is nil for a new bundle;
// otherwise that bundle's current reservation is left out of availability and
// a nil Quantity means the bundle's stored quantity.
type BundleChange struct {
	BundleID *uuid.UUID         `json:"bundle_id,omitempty"`
	Quantity *int               `json:"quantity,omitempty"`
	Items    []BundleItemChange `json:"items"`
}

// Guard runs ledger checks against rows locked in the caller's transaction.
// Sales and bundle services use it so validation and mutation share one tx.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// LockLots locks every id and fails with NotFound when any is missing.
func (g *Guard) LockLots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Lot, error) {
	lots, err := g.store.LockLots(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock lots")
	}
	return indexLots(ids, lots)
}

// Availability resolves the given lots. excludeBundleID leaves one bundle's
// reservation out of the result.
func (g *Guard) Availability(ctx context.Context, lots []models.Lot, excludeBundleID *uuid.UUID) (map[uuid.UUID]Availability, error) {
	ids := make([]uuid.UUID, 0, len(lots))
	for _, lot := range lots {
		ids = append(ids, lot.ID)
	}
	sold, err := g.store.SoldByLot(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sales")
	}
	reservations, err := g.store.ReservationsForLots(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle reservations")
	}
	reserved := ReservedByLot(reservations, excludeBundleID)

	out := make(map[uuid.UUID]Availability, len(lots))
	for _, lot := range lots {
		out[lot.ID] = NewAvailability(lot.ID, lot.Quantity, sold[lot.ID], reserved[lot.ID])
	}
	return out, nil
}

// CheckSale locks the lots of lines and validates each against its
// availability. Lines for the same lot are summed. The first shortfall in
// line order is returned as a Rejection; lifecycle and lookup failures are errors.
func (g *Guard) CheckSale(ctx context.Context, lines []SaleLine, excludeBundleID *uuid.UUID) (map[uuid.UUID]models.Lot, *Rejection, error) {
	if len(lines) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one sale line is required")
	}
	order := make([]uuid.UUID, 0, len(lines))
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.LotID == uuid.Nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
		}
		if line.Qty <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "Quantity must be greater than 0")
		}
		if _, ok := totals[line.LotID]; !ok {
			order = append(order, line.LotID)
		}
		totals[line.LotID] += line.Qty
	}

	lots, err := g.LockLots(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range order {
		if err := CheckOperation(lots[id].Status, OpSale); err != nil {
			return nil, nil, err
		}
	}

	avail, err := g.Availability(ctx, lotValues(order, lots), excludeBundleID)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range order {
		if rej := CheckSale(avail[id], totals[id]); rej != nil {
			return lots, rej, nil
		}
	}
	return lots, nil, nil
}

// CheckBundleChange locks the bundle (when it exists) and the item lots, then
// validates every item against the proposed bundle quantity. Only lots whose
// reservation grows must be in a status that accepts bundle changes, so a lot
// that sold out under an existing bundle does not freeze its siblings.
func (g *Guard) CheckBundleChange(ctx context.Context, change BundleChange) (*Rejection, error) {
	var bundle *models.Bundle
	if change.BundleID != nil {
		var err error
		bundle, err = g.store.LockBundle(ctx, *change.BundleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bundle not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock bundle")
		}
		if bundle.Status == enums.BundleStatusSold {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot change a sold bundle")
		}
	}

	var qty int
	switch {
	case change.Quantity != nil:
		qty = *change.Quantity
	case bundle != nil:
		qty = bundle.Quantity
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Bundle quantity is required")
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Bundle quantity cannot be negative")
	}

	items := make([]BundleItemChange, 0, len(change.Items))
	index := make(map[uuid.UUID]int, len(change.Items))
	for _, item := range change.Items {
		if item.CardsNeeded <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "Cards needed must be greater than 0")
		}
		if i, ok := index[item.LotID]; ok {
			items[i].CardsNeeded += item.CardsNeeded
			continue
		}
		index[item.LotID] = len(items)
		items = append(items, item)
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.LotID)
	}
	lots, err := g.LockLots(ctx, ids)
	if err != nil {
		return nil, err
	}
	held, err := g.heldByBundle(ctx, bundle, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if qty*item.CardsNeeded <= held[item.LotID] {
			continue
		}
		if err := CheckOperation(lots[item.LotID].Status, OpBundleItem); err != nil {
			return nil, err
		}
	}

	avail, err := g.Availability(ctx, lotValues(ids, lots), change.BundleID)
	if err != nil {
		return nil, err
	}
	return CheckBundleChange(qty, items, avail), nil
}

// heldByBundle returns the units bundle currently reserves per lot. A nil
// bundle holds nothing.
func (g *Guard) heldByBundle(ctx context.Context, bundle *models.Bundle, lotIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	held := make(map[uuid.UUID]int, len(lotIDs))
	if bundle == nil {
		return held, nil
	}
	rows, err := g.store.ListBundleItemsForLots(ctx, lotIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}
	for _, row := range rows {
		if row.BundleID == bundle.ID {
			held[row.LotID] += bundle.Quantity * row.Quantity
		}
	}
	return held, nil
}

// SettleSoldOut marks lots sold once their sales cover the full quantity.
// It returns the lots whose status changed.
func (g *Guard) SettleSoldOut(ctx context.Context, lots map[uuid.UUID]models.Lot) ([]models.Lot, error) {
	ids := make([]uuid.UUID, 0, len(lots))
	for id := range lots {
		ids = append(ids, id)
	}
	ids = sortedIDs(ids)

	sold, err := g.store.SoldByLot(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sales")
	}

	var changed []models.Lot
	for _, id := range ids {
		lot := lots[id]
		next := StatusAfterSale(lot.Status, lot.Quantity, sold[id])
		if next == lot.Status {
			continue
		}
		if err := g.store.UpdateLot(ctx, id, map[string]any{"status": next}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark lot sold")
		}
		lot.Status = next
		changed = append(changed, lot)
	}
	return changed, nil
}

func indexLots(ids []uuid.UUID, lots []models.Lot) (map[uuid.UUID]models.Lot, error) {
	out := make(map[uuid.UUID]models.Lot, len(lots))
	for _, lot := range lots {
		out[lot.ID] = lot
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lot not found").
			WithDetails(map[string]any{"lot_ids": missing})
	}
	return out, nil
}

func lotValues(ids []uuid.UUID, lots map[uuid.UUID]models.Lot) []models.Lot {
	out := make([]models.Lot, 0, len(ids))
	for _, id := range ids {
		out = append(out, lots[id])
	}
	return out
}
