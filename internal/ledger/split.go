package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/money"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
)

// SplitInput carries the split quantity and optional overrides for the new lot.
type SplitInput struct {
	Quantity       int                  `json:"quantity" validate:"required,gt=0"`
	ForSale        *bool                `json:"for_sale,omitempty"`
	ListPricePence *int64               `json:"list_price_pence,omitempty" validate:"omitempty,gte=0"`
	Status         *enums.LotStatus     `json:"status,omitempty"`
	Condition      *enums.CardCondition `json:"condition,omitempty"`
	Note           *string              `json:"note,omitempty"`
}

type SplitResult struct {
	Source  models.Lot `json:"source"`
	Created models.Lot `json:"created"`
}

// DistributeSplit returns how many units of each history entry move to the
// new lot: floor(entry*splitQty/lotQuantity) each, then the leftover units go
// to the largest fractional remainders, ties broken by entry order.
func DistributeSplit(entries []int, lotQuantity, splitQty int) []int {
	moved := make([]int, len(entries))
	if lotQuantity <= 0 || splitQty <= 0 {
		return moved
	}

	type share struct {
		index     int
		remainder decimal.Decimal
	}
	shares := make([]share, len(entries))
	total := 0
	for i, qty := range entries {
		whole, rem := money.Proportion(qty, splitQty, lotQuantity)
		moved[i] = whole
		total += whole
		shares[i] = share{index: i, remainder: rem}
	}

	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder.GreaterThan(shares[b].remainder)
	})
	leftover := splitQty - total
	for _, sh := range shares {
		if leftover == 0 {
			break
		}
		if moved[sh.index] < entries[sh.index] {
			moved[sh.index]++
			leftover--
		}
	}
	return moved
}

// splitStatus picks the new lot's status: an explicit override wins, a lot not
// for sale starts as draft, and a piece of a listed lot is ready rather than
// listed because no listing points at it yet.
func splitStatus(source models.Lot, forSale bool, override *enums.LotStatus) enums.LotStatus {
	if override != nil {
		return *override
	}
	if !forSale {
		return enums.LotStatusDraft
	}
	if source.Status == enums.LotStatusListed {
		return enums.LotStatusReady
	}
	return source.Status
}

func (s *service) SplitLot(ctx context.Context, lotID uuid.UUID, input SplitInput) (*SplitResult, error) {
	start := time.Now()
	result, err := s.splitLot(ctx, lotID, input)
	s.metrics.ObserveResult(metrics.OpSplit, start, err)
	return result, err
}

func (s *service) splitLot(ctx context.Context, lotID uuid.UUID, input SplitInput) (*SplitResult, error) {
	if lotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	if input.Status != nil && (!input.Status.IsValid() || *input.Status == enums.LotStatusSold) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status for split lot")
	}
	if input.Condition != nil && !input.Condition.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid condition")
	}

	var result SplitResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)
		guard := NewGuard(store)

		lots, err := guard.LockLots(ctx, []uuid.UUID{lotID})
		if err != nil {
			return err
		}
		source := lots[lotID]
		if err := CheckOperation(source.Status, OpSplit); err != nil {
			return err
		}

		avail, err := guard.Availability(ctx, []models.Lot{source}, nil)
		if err != nil {
			return err
		}
		if err := CheckSplit(avail[lotID], input.Quantity); err != nil {
			return err
		}

		forSale := source.ForSale
		if input.ForSale != nil {
			forSale = *input.ForSale
		}
		created := models.Lot{
			CardID:         source.CardID,
			Condition:      source.Condition,
			Variation:      source.Variation,
			Quantity:       input.Quantity,
			Status:         splitStatus(source, forSale, input.Status),
			ForSale:        forSale,
			ListPricePence: source.ListPricePence,
			AcquisitionID:  source.AcquisitionID,
			Note:           source.Note,
			UseAPIImage:    source.UseAPIImage,
		}
		if input.Condition != nil {
			created.Condition = *input.Condition
		}
		if input.ListPricePence != nil {
			created.ListPricePence = input.ListPricePence
		}
		if input.Note != nil {
			created.Note = input.Note
		}
		created.SKU = sku.Generate(created.CardID, created.Condition, created.Variation)

		if err := store.CreateLot(ctx, &created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create split lot")
		}

		originalQty := source.Quantity
		source.Quantity -= input.Quantity
		if err := store.UpdateLot(ctx, source.ID, map[string]any{"quantity": source.Quantity}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reduce source lot")
		}

		if err := s.splitHistory(ctx, store, source, created, originalQty); err != nil {
			return err
		}
		if err := copyPhotos(ctx, store, source.ID, created.ID); err != nil {
			return err
		}

		actor := audit.ActorFrom(ctx)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotSplit,
			EntityType: enums.AuditEntityLot,
			EntityID:   source.ID,
			Actor:      actor,
			Before:     map[string]any{"quantity": originalQty},
			After:      map[string]any{"quantity": source.Quantity, "created_lot_id": created.ID, "split_quantity": input.Quantity},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotSplit,
			AggregateType: enums.AggregateLot,
			AggregateID:   source.ID,
			Actor:         actor,
			Data: payloads.LotSplitEvent{
				SourceLotID:    source.ID,
				CreatedLotID:   created.ID,
				SplitQuantity:  input.Quantity,
				SourceQuantity: source.Quantity,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit lot split")
		}

		result = SplitResult{Source: source, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithLotID(ctx, lotID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"created_lot_id": result.Created.ID.String(),
			"split_quantity": input.Quantity,
		})
		s.logg.Info(logCtx, "lot split")
	}
	return &result, nil
}

// splitHistory moves a proportional slice of the source's purchase history to
// the created lot. Legacy lots (no history, acquisition_id set) get explicit
// rows on both sides.
func (s *service) splitHistory(ctx context.Context, store Store, source, created models.Lot, originalQty int) error {
	entries, err := store.ListHistory(ctx, []uuid.UUID{source.ID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase history")
	}

	if len(entries) == 0 {
		if source.AcquisitionID == nil {
			return nil
		}
		rows := []models.LotPurchaseHistory{
			{LotID: created.ID, AcquisitionID: *source.AcquisitionID, Quantity: created.Quantity},
		}
		if source.Quantity > 0 {
			rows = append(rows, models.LotPurchaseHistory{
				LotID: source.ID, AcquisitionID: *source.AcquisitionID, Quantity: source.Quantity,
			})
		}
		if err := store.CreateHistory(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create legacy purchase history")
		}
		return nil
	}

	quantities := make([]int, len(entries))
	for i, entry := range entries {
		quantities[i] = entry.Quantity
	}
	moved := DistributeSplit(quantities, originalQty, created.Quantity)

	var newRows []models.LotPurchaseHistory
	var emptied []uuid.UUID
	for i, entry := range entries {
		if moved[i] == 0 {
			continue
		}
		newRows = append(newRows, models.LotPurchaseHistory{
			LotID:         created.ID,
			AcquisitionID: entry.AcquisitionID,
			Quantity:      moved[i],
		})
		remaining := entry.Quantity - moved[i]
		if remaining == 0 {
			emptied = append(emptied, entry.ID)
			continue
		}
		if err := store.UpdateHistoryQuantity(ctx, entry.ID, remaining); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reduce purchase history")
		}
	}
	if err := store.DeleteHistory(ctx, emptied); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete emptied purchase history")
	}
	if err := store.CreateHistory(ctx, newRows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create split purchase history")
	}
	return nil
}

func copyPhotos(ctx context.Context, store Store, fromLotID, toLotID uuid.UUID) error {
	photos, err := store.ListPhotos(ctx, []uuid.UUID{fromLotID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load photos")
	}
	copies := make([]models.LotPhoto, 0, len(photos))
	for _, photo := range photos {
		copies = append(copies, models.LotPhoto{
			LotID:     toLotID,
			Kind:      photo.Kind,
			ObjectKey: photo.ObjectKey,
		})
	}
	if err := store.CreatePhotos(ctx, copies); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy photos")
	}
	return nil
}
