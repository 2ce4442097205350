package bundles

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/internal/sales"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
)

// Sell records the sale of input.Quantity bundle units. Each item sells
// quantity x cards-needed units of its lot, all at one per-card price.
func (s *service) Sell(ctx context.Context, id uuid.UUID, input SellInput) (*SellResult, error) {
	start := time.Now()
	res, err := s.sell(ctx, id, input)
	s.metrics.ObserveResult(metrics.OpBundleSell, start, err)
	return res, err
}

func (s *service) sell(ctx context.Context, id uuid.UUID, input SellInput) (*SellResult, error) {
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Quantity must be greater than 0")
	}
	fields := sales.OrderFields{
		Buyer:         input.Buyer,
		OrderGroup:    input.OrderGroup,
		FeesPence:     input.FeesPence,
		ShippingPence: input.ShippingPence,
		DiscountPence: input.DiscountPence,
		SoldAt:        input.SoldAt,
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bundle, items, err := s.lockActive(ctx, repo, id, "Bundle has already been sold")
		if err != nil {
			return err
		}
		if qty > bundle.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("Only %d bundle(s) available. Requested: %d", bundle.Quantity, qty))
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "Bundle has no items")
		}

		saleLines := make([]ledger.SaleLine, 0, len(items))
		for _, item := range items {
			saleLines = append(saleLines, ledger.SaleLine{LotID: item.LotID, Qty: qty * item.Quantity})
		}
		guard := s.ledger.Guard(tx)
		lots, rej, err := guard.CheckSale(ctx, saleLines, &bundle.ID)
		if err != nil {
			return err
		}
		if rej != nil {
			return rej.AsError()
		}

		salesRepo := s.salesRepo.WithTx(tx)
		order, err := fields.NewOrder(ctx, salesRepo, &bundle.ID)
		if err != nil {
			return err
		}
		price := unitPrice(*bundle, items)
		lines := make([]sales.OrderLine, 0, len(saleLines))
		for _, line := range saleLines {
			lines = append(lines, sales.OrderLine{LotID: line.LotID, Qty: line.Qty, UnitPricePence: price})
		}
		written, err := sales.WriteOrder(ctx, salesRepo, order, lines, lots)
		if err != nil {
			return err
		}
		orderID = order.ID

		remaining := bundle.Quantity - qty
		updates := map[string]any{"quantity": remaining}
		if remaining == 0 {
			updates["status"] = enums.BundleStatusSold
		}
		if err := repo.Update(ctx, bundle.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement bundle")
		}

		settled, err := guard.SettleSoldOut(ctx, lots)
		if err != nil {
			return err
		}
		if err := sales.PublishSale(ctx, tx, s.outbox, s.audit, order, written, lots, settled); err != nil {
			return err
		}

		actor := audit.ActorFrom(ctx)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBundleSold,
			AggregateType: enums.AggregateBundle,
			AggregateID:   bundle.ID,
			Actor:         actor,
			Data: payloads.BundleSoldEvent{
				BundleID:     bundle.ID,
				SalesOrderID: order.ID,
				QuantitySold: qty,
				Remaining:    remaining,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit bundle sold")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditBundleSold,
			EntityType: enums.AuditEntityBundle,
			EntityID:   bundle.ID,
			Actor:      actor,
			Before:     map[string]any{"quantity": bundle.Quantity},
			After:      map[string]any{"quantity": remaining, "sales_order_id": order.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithBundleID(ctx, id.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"sales_order_id": orderID.String(), "quantity": qty})
		s.logg.Info(logCtx, "bundle sold")
	}

	bundle, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	order, err := s.salesSvc.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &SellResult{Bundle: *bundle, Order: *order}, nil
}
