package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
)

// AggregateHistory sums purchase history per acquisition across lots, in
// first-seen order. A lot without history but with an acquisition_id
// contributes its whole quantity to that acquisition.
func AggregateHistory(lots []models.Lot, history []models.LotPurchaseHistory) []models.LotPurchaseHistory {
	byLot := make(map[uuid.UUID][]models.LotPurchaseHistory, len(lots))
	for _, entry := range history {
		byLot[entry.LotID] = append(byLot[entry.LotID], entry)
	}

	var order []uuid.UUID
	totals := map[uuid.UUID]int{}
	add := func(acqID uuid.UUID, qty int) {
		if qty <= 0 {
			return
		}
		if _, ok := totals[acqID]; !ok {
			order = append(order, acqID)
		}
		totals[acqID] += qty
	}

	for _, lot := range lots {
		entries := byLot[lot.ID]
		if len(entries) == 0 {
			if lot.AcquisitionID != nil {
				add(*lot.AcquisitionID, lot.Quantity)
			}
			continue
		}
		for _, entry := range entries {
			add(entry.AcquisitionID, entry.Quantity)
		}
	}

	out := make([]models.LotPurchaseHistory, 0, len(order))
	for _, acqID := range order {
		out = append(out, models.LotPurchaseHistory{AcquisitionID: acqID, Quantity: totals[acqID]})
	}
	return out
}

// FoldPhotos keeps one front and one back photo plus every distinct extra,
// preferring lots earlier in order. It returns the photos to keep and the ids
// of the rest.
func FoldPhotos(order []uuid.UUID, photos []models.LotPhoto) ([]models.LotPhoto, []uuid.UUID) {
	byLot := make(map[uuid.UUID][]models.LotPhoto, len(order))
	for _, photo := range photos {
		byLot[photo.LotID] = append(byLot[photo.LotID], photo)
	}

	var keep []models.LotPhoto
	var drop []uuid.UUID
	haveKind := map[enums.PhotoKind]bool{}
	extras := map[string]bool{}
	for _, lotID := range order {
		for _, photo := range byLot[lotID] {
			switch photo.Kind {
			case enums.PhotoKindFront, enums.PhotoKindBack:
				if haveKind[photo.Kind] {
					drop = append(drop, photo.ID)
					continue
				}
				haveKind[photo.Kind] = true
			default:
				if extras[photo.ObjectKey] {
					drop = append(drop, photo.ID)
					continue
				}
				extras[photo.ObjectKey] = true
			}
			keep = append(keep, photo)
		}
	}
	return keep, drop
}

func (s *service) MergeLots(ctx context.Context, lotIDs []uuid.UUID, targetID uuid.UUID) (*models.Lot, error) {
	start := time.Now()
	lot, err := s.mergeLots(ctx, lotIDs, targetID)
	s.metrics.ObserveResult(metrics.OpMerge, start, err)
	return lot, err
}

func (s *service) mergeLots(ctx context.Context, lotIDs []uuid.UUID, targetID uuid.UUID) (*models.Lot, error) {
	ids := sortedIDs(lotIDs)
	if len(ids) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "At least two lots are required to merge")
	}
	if targetID == uuid.Nil || !containsID(ids, targetID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Target lot must be one of the lots being merged")
	}

	// target first, the rest in ascending id order
	order := []uuid.UUID{targetID}
	var others []uuid.UUID
	for _, id := range ids {
		if id != targetID {
			order = append(order, id)
			others = append(others, id)
		}
	}

	var merged models.Lot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)
		guard := NewGuard(store)

		locked, err := guard.LockLots(ctx, ids)
		if err != nil {
			return err
		}
		lots := lotValues(order, locked)
		for _, lot := range lots {
			if err := CheckOperation(lot.Status, OpMerge); err != nil {
				return err
			}
		}

		sold, err := store.SoldByLot(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sales")
		}
		if err := CheckMerge(lots, sold); err != nil {
			return err
		}

		target := lots[0]
		before := target

		history, err := store.ListHistory(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase history")
		}
		aggregated := AggregateHistory(lots, history)

		total := 0
		useAPIImage := false
		note := target.Note
		for _, lot := range lots {
			total += lot.Quantity
			useAPIImage = useAPIImage || lot.UseAPIImage
			if (note == nil || *note == "") && lot.Note != nil && *lot.Note != "" {
				note = lot.Note
			}
		}
		switch len(aggregated) {
		case 0:
		case 1:
			acqID := aggregated[0].AcquisitionID
			target.AcquisitionID = &acqID
		default:
			target.AcquisitionID = nil
		}
		target.Quantity = total
		target.Note = note
		target.UseAPIImage = useAPIImage

		if err := store.UpdateLot(ctx, target.ID, map[string]any{
			"quantity":       target.Quantity,
			"note":           target.Note,
			"use_api_image":  target.UseAPIImage,
			"acquisition_id": target.AcquisitionID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update target lot")
		}

		historyIDs := make([]uuid.UUID, 0, len(history))
		for _, entry := range history {
			historyIDs = append(historyIDs, entry.ID)
		}
		if err := store.DeleteHistory(ctx, historyIDs); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear purchase history")
		}
		for i := range aggregated {
			aggregated[i].LotID = target.ID
		}
		if err := store.CreateHistory(ctx, aggregated); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write merged purchase history")
		}

		if err := foldPhotos(ctx, store, order); err != nil {
			return err
		}
		if err := foldBundleItems(ctx, store, target.ID, ids); err != nil {
			return err
		}

		// last, so a failure above leaves every source lot in place
		if err := store.DeleteLots(ctx, others); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete merged lots")
		}

		actor := audit.ActorFrom(ctx)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotsMerged,
			EntityType: enums.AuditEntityLot,
			EntityID:   target.ID,
			Actor:      actor,
			Before:     map[string]any{"quantity": before.Quantity, "merged_lot_ids": others},
			After:      map[string]any{"quantity": target.Quantity, "acquisition_id": target.AcquisitionID},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotsMerged,
			AggregateType: enums.AggregateLot,
			AggregateID:   target.ID,
			Actor:         actor,
			Data: payloads.LotsMergedEvent{
				TargetLotID:  target.ID,
				MergedLotIDs: others,
				Quantity:     target.Quantity,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit lots merged")
		}

		merged = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithLotID(ctx, targetID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"merged_lots": len(others), "quantity": merged.Quantity})
		s.logg.Info(logCtx, "lots merged")
	}
	return &merged, nil
}

func foldPhotos(ctx context.Context, store Store, order []uuid.UUID) error {
	photos, err := store.ListPhotos(ctx, order)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load photos")
	}
	keep, drop := FoldPhotos(order, photos)

	targetID := order[0]
	var move []uuid.UUID
	for _, photo := range keep {
		if photo.LotID != targetID {
			move = append(move, photo.ID)
		}
	}
	if err := store.DeletePhotos(ctx, drop); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete duplicate photos")
	}
	if err := store.ReassignPhotos(ctx, move, targetID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move photos")
	}
	return nil
}

// foldBundleItems re-points bundle items of merged lots at the target. When
// the target already sits in the same bundle the cards needed are added, so
// every bundle keeps its reservation.
func foldBundleItems(ctx context.Context, store Store, targetID uuid.UUID, ids []uuid.UUID) error {
	items, err := store.ListBundleItemsForLots(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}

	byBundle := map[uuid.UUID]*models.BundleItem{}
	for i := range items {
		if items[i].LotID == targetID {
			byBundle[items[i].BundleID] = &items[i]
		}
	}

	var remove []uuid.UUID
	for i := range items {
		item := &items[i]
		if item.LotID == targetID {
			continue
		}
		if existing, ok := byBundle[item.BundleID]; ok {
			existing.Quantity += item.Quantity
			remove = append(remove, item.ID)
			if err := store.UpdateBundleItem(ctx, existing.ID, map[string]any{"quantity": existing.Quantity}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "combine bundle item")
			}
			continue
		}
		item.LotID = targetID
		byBundle[item.BundleID] = item
		if err := store.UpdateBundleItem(ctx, item.ID, map[string]any{"lot_id": targetID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move bundle item")
		}
	}
	if err := store.DeleteBundleItems(ctx, remove); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete folded bundle items")
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
