package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/money"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
)

// DefaultPlatform is used when a sale names no platform.
const DefaultPlatform = "ebay"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Record(ctx context.Context, input RecordInput) (*OrderDTO, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
}

type BuyerInput struct {
	Platform string `json:"platform,omitempty" validate:"omitempty,max=50"`
	Handle   string `json:"handle" validate:"required,max=200"`
}

// RecordInput describes one order. SoldPricePence is the total across all
// lines; each unit is stored at the rounded per-unit share.
type RecordInput struct {
	Lines          []ledger.SaleLine `json:"lines" validate:"required,min=1,dive"`
	SoldPricePence int64             `json:"sold_price_pence" validate:"gte=0"`
	Buyer          BuyerInput        `json:"buyer" validate:"required"`
	OrderGroup     *string           `json:"order_group,omitempty" validate:"omitempty,max=200"`
	FeesPence      int64             `json:"fees_pence" validate:"gte=0"`
	ShippingPence  int64             `json:"shipping_pence" validate:"gte=0"`
	DiscountPence  int64             `json:"discount_pence" validate:"gte=0"`
	SoldAt         *time.Time        `json:"sold_at,omitempty"`
}

// OrderFields are the order-level attributes shared by single and bundle sales.
type OrderFields struct {
	Buyer         BuyerInput
	OrderGroup    *string
	FeesPence     int64
	ShippingPence int64
	DiscountPence int64
	SoldAt        *time.Time
}

type AllocationDTO struct {
	AcquisitionID uuid.UUID `json:"acquisition_id"`
	Qty           int       `json:"qty"`
}

type ItemDTO struct {
	ID             uuid.UUID       `json:"id"`
	LotID          uuid.UUID       `json:"lot_id"`
	Qty            int             `json:"qty"`
	SoldPricePence int64           `json:"sold_price_pence"`
	Allocations    []AllocationDTO `json:"allocations"`
}

type OrderDTO struct {
	ID            uuid.UUID  `json:"id"`
	Platform      string     `json:"platform"`
	BuyerHandle   string     `json:"buyer_handle"`
	BundleID      *uuid.UUID `json:"bundle_id,omitempty"`
	OrderGroup    *string    `json:"order_group,omitempty"`
	FeesPence     int64      `json:"fees_pence"`
	ShippingPence int64      `json:"shipping_pence"`
	DiscountPence int64      `json:"discount_pence"`
	SoldAt        time.Time  `json:"sold_at"`
	Items         []ItemDTO  `json:"items"`
}

type service struct {
	repo    *Repository
	ledger  ledger.Service
	tx      txRunner
	outbox  outbox.Emitter
	audit   audit.Recorder
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService wires sale recording. m and logg may be nil.
func NewService(repo *Repository, ledgerSvc ledger.Service, tx txRunner, emitter outbox.Emitter, recorder audit.Recorder, m *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{
		repo:    repo,
		ledger:  ledgerSvc,
		tx:      tx,
		outbox:  emitter,
		audit:   recorder,
		metrics: m,
		logg:    logg,
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*OrderDTO, error) {
	start := time.Now()
	order, err := s.record(ctx, input)
	s.metrics.ObserveResult(metrics.OpSale, start, err)
	return order, err
}

func (s *service) record(ctx context.Context, input RecordInput) (*OrderDTO, error) {
	if input.SoldPricePence < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sold price cannot be negative")
	}
	fields := OrderFields{
		Buyer:         input.Buyer,
		OrderGroup:    input.OrderGroup,
		FeesPence:     input.FeesPence,
		ShippingPence: input.ShippingPence,
		DiscountPence: input.DiscountPence,
		SoldAt:        input.SoldAt,
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := s.ledger.Guard(tx)
		lots, rej, err := guard.CheckSale(ctx, input.Lines, nil)
		if err != nil {
			return err
		}
		if err := requireForSale(input.Lines, lots); err != nil {
			return err
		}
		if rej != nil {
			return rej.AsError()
		}

		totalQty := 0
		for _, line := range input.Lines {
			totalQty += line.Qty
		}
		unitPrice := money.PerUnit(input.SoldPricePence, totalQty)
		lines := make([]OrderLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			lines = append(lines, OrderLine{LotID: line.LotID, Qty: line.Qty, UnitPricePence: unitPrice})
		}

		repo := s.repo.WithTx(tx)
		order, err := fields.newOrder(ctx, repo, nil)
		if err != nil {
			return err
		}
		items, err := WriteOrder(ctx, repo, order, lines, lots)
		if err != nil {
			return err
		}
		orderID = order.ID

		settled, err := guard.SettleSoldOut(ctx, lots)
		if err != nil {
			return err
		}
		return PublishSale(ctx, tx, s.outbox, s.audit, order, items, lots, settled)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"sales_order_id": orderID.String(), "lines": len(input.Lines)})
		s.logg.Info(logCtx, "sale recorded")
	}
	return s.Get(ctx, orderID)
}

// PublishSale emits sale_recorded plus a status change for every lot the sale
// sold out, and writes the audit entry for the order.
func PublishSale(ctx context.Context, tx *gorm.DB, emitter outbox.Emitter, recorder audit.Recorder, order *models.SalesOrder, items []models.SalesItem, before map[uuid.UUID]models.Lot, settled []models.Lot) error {
	actor := audit.ActorFrom(ctx)
	lines := make([]payloads.SaleLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.SaleLine{LotID: item.LotID, Qty: item.Qty, SoldPricePence: item.SoldPricePence})
	}
	if err := emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSaleRecorded,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    order.SoldAt,
		Data: payloads.SaleRecordedEvent{
			SalesOrderID: order.ID,
			BundleID:     order.BundleID,
			Platform:     order.Platform,
			Lines:        lines,
			SoldAt:       order.SoldAt,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit sale recorded")
	}

	for _, lot := range settled {
		if err := emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotStatusChanged,
			AggregateType: enums.AggregateLot,
			AggregateID:   lot.ID,
			Actor:         actor,
			Data: payloads.LotStatusChangedEvent{
				LotID: lot.ID,
				From:  before[lot.ID].Status,
				To:    lot.Status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit lot status changed")
		}
	}

	return recorder.Record(ctx, tx, audit.Entry{
		Action:     enums.AuditSaleRecorded,
		EntityType: enums.AuditEntitySalesOrder,
		EntityID:   order.ID,
		Actor:      actor,
		After:      map[string]any{"bundle_id": order.BundleID, "lines": lines},
	})
}

func (f OrderFields) validate() error {
	if strings.TrimSpace(f.Buyer.Handle) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer handle is required")
	}
	if f.FeesPence < 0 || f.ShippingPence < 0 || f.DiscountPence < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "fees, shipping and discount cannot be negative")
	}
	return nil
}

// NewOrder resolves the buyer and builds the unsaved order header.
func (f OrderFields) NewOrder(ctx context.Context, repo *Repository, bundleID *uuid.UUID) (*models.SalesOrder, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f.newOrder(ctx, repo, bundleID)
}

func (f OrderFields) newOrder(ctx context.Context, repo *Repository, bundleID *uuid.UUID) (*models.SalesOrder, error) {
	platform := strings.ToLower(strings.TrimSpace(f.Buyer.Platform))
	if platform == "" {
		platform = DefaultPlatform
	}
	buyer, err := repo.UpsertBuyer(ctx, platform, f.Buyer.Handle)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve buyer")
	}
	soldAt := time.Now().UTC()
	if f.SoldAt != nil {
		soldAt = f.SoldAt.UTC()
	}
	var group *string
	if f.OrderGroup != nil && strings.TrimSpace(*f.OrderGroup) != "" {
		trimmed := strings.TrimSpace(*f.OrderGroup)
		group = &trimmed
	}
	return &models.SalesOrder{
		BuyerID:       buyer.ID,
		BundleID:      bundleID,
		OrderGroup:    group,
		Platform:      platform,
		FeesPence:     f.FeesPence,
		ShippingPence: f.ShippingPence,
		DiscountPence: f.DiscountPence,
		SoldAt:        soldAt,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sales order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales order")
	}
	buyer, err := s.repo.FindBuyer(ctx, order.BuyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}
	items, err := s.repo.ItemsForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales items")
	}
	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	allocations, err := s.repo.AllocationsForItems(ctx, itemIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase allocations")
	}
	byItem := make(map[uuid.UUID][]AllocationDTO, len(items))
	for _, row := range allocations {
		byItem[row.SalesItemID] = append(byItem[row.SalesItemID], AllocationDTO{AcquisitionID: row.AcquisitionID, Qty: row.Qty})
	}

	dto := &OrderDTO{
		ID:            order.ID,
		Platform:      order.Platform,
		BuyerHandle:   buyer.Handle,
		BundleID:      order.BundleID,
		OrderGroup:    order.OrderGroup,
		FeesPence:     order.FeesPence,
		ShippingPence: order.ShippingPence,
		DiscountPence: order.DiscountPence,
		SoldAt:        order.SoldAt,
		Items:         make([]ItemDTO, 0, len(items)),
	}
	for _, item := range items {
		allocs := byItem[item.ID]
		if allocs == nil {
			allocs = []AllocationDTO{}
		}
		dto.Items = append(dto.Items, ItemDTO{
			ID:             item.ID,
			LotID:          item.LotID,
			Qty:            item.Qty,
			SoldPricePence: item.SoldPricePence,
			Allocations:    allocs,
		})
	}
	return dto, nil
}

// requireForSale rejects single-unit sales of lots held back from sale.
// Bundle sells skip it: the bundle itself is what is offered.
func requireForSale(lines []ledger.SaleLine, lots map[uuid.UUID]models.Lot) error {
	for _, line := range lines {
		if !lots[line.LotID].ForSale {
			return pkgerrors.New(pkgerrors.CodeValidation, "Lot is not for sale").
				WithDetails(map[string]any{"lot_id": line.LotID})
		}
	}
	return nil
}
