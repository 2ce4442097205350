package bundles

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
	"github.com/GregHandsley/pokeflip-sub002/internal/sales"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/money"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages bundles. Every change that grows a bundle's reservation is
// checked against lot availability under the same row locks that write it.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*BundleDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*BundleDTO, error)
	List(ctx context.Context, params pagination.Params) (*pagination.Page[BundleDTO], error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*BundleDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Validate(ctx context.Context, id uuid.UUID, input ValidateInput) (*ledger.Rejection, error)
	AddItem(ctx context.Context, id uuid.UUID, input ItemInput) (*BundleDTO, error)
	UpdateItem(ctx context.Context, id, itemID uuid.UUID, input UpdateItemInput) (*BundleDTO, error)
	RemoveItem(ctx context.Context, id, itemID uuid.UUID) (*BundleDTO, error)
	Sell(ctx context.Context, id uuid.UUID, input SellInput) (*SellResult, error)
}

type service struct {
	repo      *Repository
	salesRepo *sales.Repository
	salesSvc  sales.Service
	ledger    ledger.Service
	tx        txRunner
	outbox    outbox.Emitter
	audit     audit.Recorder
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
}

// NewService wires bundle management. m and logg may be nil.
func NewService(
	repo *Repository,
	salesRepo *sales.Repository,
	salesSvc sales.Service,
	ledgerSvc ledger.Service,
	tx txRunner,
	emitter outbox.Emitter,
	recorder audit.Recorder,
	m *metrics.LedgerMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bundles repository required")
	}
	if salesRepo == nil || salesSvc == nil {
		return nil, fmt.Errorf("sales dependencies required")
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
		repo:      repo,
		salesRepo: salesRepo,
		salesSvc:  salesSvc,
		ledger:    ledgerSvc,
		tx:        tx,
		outbox:    emitter,
		audit:     recorder,
		metrics:   m,
		logg:      logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*BundleDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle name is required")
	}
	if input.PricePence < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle price cannot be negative")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Bundle quantity must be at least 1")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a bundle needs at least one item")
	}
	changes := make([]ledger.BundleItemChange, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if _, dup := seen[item.LotID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a lot can appear only once per bundle").
				WithDetails(map[string]any{"lot_id": item.LotID})
		}
		seen[item.LotID] = struct{}{}
		changes = append(changes, ledger.BundleItemChange{LotID: item.LotID, CardsNeeded: cardsOrDefault(item.CardsNeeded)})
	}

	start := time.Now()
	var bundle models.Bundle
	var items []models.BundleItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := s.ledger.Guard(tx)
		if err := requireForSale(ctx, guard, changes); err != nil {
			return err
		}
		rej, err := guard.CheckBundleChange(ctx, ledger.BundleChange{Quantity: &qty, Items: changes})
		if err != nil {
			return err
		}
		if rej != nil {
			return rej.AsError()
		}

		repo := s.repo.WithTx(tx)
		bundle = models.Bundle{
			Name:        name,
			Description: input.Description,
			PricePence:  input.PricePence,
			Quantity:    qty,
			Status:      enums.BundleStatusActive,
		}
		if err := repo.Create(ctx, &bundle); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bundle")
		}
		items = make([]models.BundleItem, 0, len(changes))
		for _, change := range changes {
			items = append(items, models.BundleItem{BundleID: bundle.ID, LotID: change.LotID, Quantity: change.CardsNeeded})
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bundle items")
		}
		return s.publishChange(ctx, tx, enums.EventBundleCreated, enums.AuditBundleCreated, bundle, nil)
	})
	s.metrics.ObserveResult(metrics.OpBundleChange, start, err)
	if err != nil {
		return nil, err
	}
	dto := toDTO(bundle, items)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BundleDTO, error) {
	bundle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, bundleLookupError(err)
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}
	dto := toDTO(*bundle, items)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*pagination.Page[BundleDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bundles")
	}
	page := pagination.Trim(rows, params.Limit, func(b models.Bundle) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})

	ids := make([]uuid.UUID, 0, len(page.Items))
	for _, bundle := range page.Items {
		ids = append(ids, bundle.ID)
	}
	items, err := s.repo.Items(ctx, ids...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}
	byBundle := make(map[uuid.UUID][]models.BundleItem, len(ids))
	for _, item := range items {
		byBundle[item.BundleID] = append(byBundle[item.BundleID], item)
	}

	out := &pagination.Page[BundleDTO]{Items: make([]BundleDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, bundle := range page.Items {
		out.Items = append(out.Items, toDTO(bundle, byBundle[bundle.ID]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*BundleDTO, error) {
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "No fields to update")
	}
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle name is required")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.PricePence != nil {
		if *input.PricePence < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bundle price cannot be negative")
		}
		updates["price_pence"] = *input.PricePence
	}
	if input.Quantity != nil {
		if *input.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "Bundle quantity must be at least 1")
		}
		updates["quantity"] = *input.Quantity
	}

	start := time.Now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bundle, items, err := s.lockActive(ctx, repo, id, "Cannot modify a sold bundle")
		if err != nil {
			return err
		}
		before := *bundle

		if input.Quantity != nil && *input.Quantity > bundle.Quantity {
			if err := s.checkShape(ctx, tx, id, *input.Quantity, itemChanges(items)); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update bundle")
		}
		after, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload bundle")
		}
		return s.publishChange(ctx, tx, enums.EventBundleUpdated, enums.AuditBundleUpdated, *after, &before)
	})
	s.metrics.ObserveResult(metrics.OpBundleChange, start, err)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a bundle that has never been sold from.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bundle, err := repo.LockByID(ctx, id)
		if err != nil {
			return bundleLookupError(err)
		}
		orders, err := repo.CountOrders(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bundle orders")
		}
		if orders > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "Cannot delete bundle that has been sold").
				WithDetails(map[string]any{"sales_orders": orders})
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete bundle")
		}

		actor := audit.ActorFrom(ctx)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBundleDeleted,
			AggregateType: enums.AggregateBundle,
			AggregateID:   id,
			Actor:         actor,
			Data:          payloads.BundleDeletedEvent{BundleID: id},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit bundle deleted")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditBundleDeleted,
			EntityType: enums.AuditEntityBundle,
			EntityID:   id,
			Actor:      actor,
			Before:     bundle,
		})
	})
}

// Validate dry-runs a bundle shape against current availability.
func (s *service) Validate(ctx context.Context, id uuid.UUID, input ValidateInput) (*ledger.Rejection, error) {
	return s.ledger.ValidateBundleChange(ctx, ledger.BundleChange{
		BundleID: &id,
		Quantity: input.Quantity,
		Items:    input.Items,
	})
}

// AddItem adds a lot to the bundle; a lot already present has its cards
// needed incremented instead.
func (s *service) AddItem(ctx context.Context, id uuid.UUID, input ItemInput) (*BundleDTO, error) {
	if input.LotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	cards := cardsOrDefault(input.CardsNeeded)
	if cards < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Quantity must be at least 1")
	}

	start := time.Now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bundle, items, err := s.lockActive(ctx, repo, id, "Cannot add items to a sold bundle")
		if err != nil {
			return err
		}

		var existing *models.BundleItem
		for i := range items {
			if items[i].LotID == input.LotID {
				existing = &items[i]
				break
			}
		}
		changes := itemChanges(items)
		if existing != nil {
			for i := range changes {
				if changes[i].LotID == input.LotID {
					changes[i].CardsNeeded += cards
				}
			}
		} else {
			changes = append(changes, ledger.BundleItemChange{LotID: input.LotID, CardsNeeded: cards})
		}

		if err := requireForSale(ctx, s.ledger.Guard(tx), []ledger.BundleItemChange{{LotID: input.LotID}}); err != nil {
			return err
		}
		if err := s.checkShape(ctx, tx, id, bundle.Quantity, changes); err != nil {
			return err
		}

		if existing != nil {
			if err := repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+cards); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update bundle item")
			}
		} else if err := repo.CreateItems(ctx, []models.BundleItem{{BundleID: id, LotID: input.LotID, Quantity: cards}}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add bundle item")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditBundleItemAdded,
			EntityType: enums.AuditEntityBundle,
			EntityID:   id,
			After:      map[string]any{"lot_id": input.LotID, "cards_needed": cards},
		})
	})
	s.metrics.ObserveResult(metrics.OpBundleChange, start, err)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) UpdateItem(ctx context.Context, id, itemID uuid.UUID, input UpdateItemInput) (*BundleDTO, error) {
	if input.CardsNeeded < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Quantity must be at least 1")
	}

	start := time.Now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bundle, items, err := s.lockActive(ctx, repo, id, "Cannot modify items in a sold bundle")
		if err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, id, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "Bundle item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle item")
		}
		if err := requireForSale(ctx, s.ledger.Guard(tx), []ledger.BundleItemChange{{LotID: item.LotID}}); err != nil {
			return err
		}

		changes := itemChanges(items)
		for i := range changes {
			if changes[i].LotID == item.LotID {
				changes[i].CardsNeeded = input.CardsNeeded
			}
		}
		if err := s.checkShape(ctx, tx, id, bundle.Quantity, changes); err != nil {
			return err
		}
		if err := repo.UpdateItemQuantity(ctx, item.ID, input.CardsNeeded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update bundle item")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditBundleItemUpdated,
			EntityType: enums.AuditEntityBundle,
			EntityID:   id,
			Before:     map[string]any{"lot_id": item.LotID, "cards_needed": item.Quantity},
			After:      map[string]any{"lot_id": item.LotID, "cards_needed": input.CardsNeeded},
		})
	})
	s.metrics.ObserveResult(metrics.OpBundleChange, start, err)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *service) RemoveItem(ctx context.Context, id, itemID uuid.UUID) (*BundleDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, _, err := s.lockActive(ctx, repo, id, "Cannot remove items from a sold bundle"); err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, id, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "Bundle item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle item")
		}
		if err := repo.DeleteItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove bundle item")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditBundleItemRemoved,
			EntityType: enums.AuditEntityBundle,
			EntityID:   id,
			Before:     map[string]any{"lot_id": item.LotID, "cards_needed": item.Quantity},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// lockActive locks the bundle and loads its items, rejecting sold bundles
// with soldMsg.
func (s *service) lockActive(ctx context.Context, repo *Repository, id uuid.UUID, soldMsg string) (*models.Bundle, []models.BundleItem, error) {
	bundle, err := repo.LockByID(ctx, id)
	if err != nil {
		return nil, nil, bundleLookupError(err)
	}
	if bundle.Status == enums.BundleStatusSold {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, soldMsg)
	}
	items, err := repo.Items(ctx, id)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}
	return bundle, items, nil
}

func (s *service) checkShape(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int, changes []ledger.BundleItemChange) error {
	rej, err := s.ledger.Guard(tx).CheckBundleChange(ctx, ledger.BundleChange{BundleID: &id, Quantity: &qty, Items: changes})
	if err != nil {
		return err
	}
	if rej != nil {
		return rej.AsError()
	}
	return nil
}

func (s *service) publishChange(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, action enums.AuditAction, bundle models.Bundle, before *models.Bundle) error {
	actor := audit.ActorFrom(ctx)
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateBundle,
		AggregateID:   bundle.ID,
		Actor:         actor,
		Data: payloads.BundleChangedEvent{
			BundleID: bundle.ID,
			Quantity: bundle.Quantity,
			Status:   bundle.Status,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit bundle event")
	}
	entry := audit.Entry{
		Action:     action,
		EntityType: enums.AuditEntityBundle,
		EntityID:   bundle.ID,
		Actor:      actor,
		After:      bundle,
	}
	if before != nil {
		entry.Before = *before
	}
	return s.audit.Record(ctx, tx, entry)
}

// requireForSale locks the lots of changes and rejects any not offered for sale.
func requireForSale(ctx context.Context, guard *ledger.Guard, changes []ledger.BundleItemChange) error {
	ids := make([]uuid.UUID, 0, len(changes))
	for _, change := range changes {
		ids = append(ids, change.LotID)
	}
	lots, err := guard.LockLots(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !lots[id].ForSale {
			return pkgerrors.New(pkgerrors.CodeValidation, "Cannot add cards that are not for sale to bundles").
				WithDetails(map[string]any{"lot_id": id})
		}
	}
	return nil
}

func itemChanges(items []models.BundleItem) []ledger.BundleItemChange {
	out := make([]ledger.BundleItemChange, 0, len(items))
	for _, item := range items {
		out = append(out, ledger.BundleItemChange{LotID: item.LotID, CardsNeeded: item.Quantity})
	}
	return out
}

func cardsOrDefault(cards int) int {
	if cards == 0 {
		return 1
	}
	return cards
}

func bundleLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Bundle not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle")
}

// unitPrice spreads the bundle price over every card in one bundle unit.
func unitPrice(bundle models.Bundle, items []models.BundleItem) int64 {
	cards := 0
	for _, item := range items {
		cards += item.Quantity
	}
	return money.PerUnit(bundle.PricePence, cards)
}
