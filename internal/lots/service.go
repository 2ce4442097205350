package lots

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
	"github.com/GregHandsley/pokeflip-sub002/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes inventory lot management.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*LotDetail, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[LotDTO], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.LotStatus) (*LotDTO, error)
	UpdateForSale(ctx context.Context, id uuid.UUID, input UpdateForSaleInput) (*LotDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddPhoto(ctx context.Context, id uuid.UUID, input AddPhotoInput) (*PhotoDTO, error)
	Split(ctx context.Context, id uuid.UUID, input ledger.SplitInput) (*SplitResultDTO, error)
	Merge(ctx context.Context, input MergeInput) (*LotDTO, error)
}

// UpdateForSaleInput toggles whether a lot is offered and at what price.
// Absent price or note fields keep the stored value; explicit nulls clear it.
type UpdateForSaleInput struct {
	ForSale        bool                   `json:"for_sale"`
	ListPricePence types.Nullable[int64]  `json:"list_price_pence"`
	Note           types.Nullable[string] `json:"note"`
}

type AddPhotoInput struct {
	Kind      enums.PhotoKind `json:"kind" validate:"required"`
	ObjectKey string          `json:"object_key" validate:"required,max=512"`
}

type MergeInput struct {
	LotIDs      []uuid.UUID `json:"lot_ids" validate:"required,min=2"`
	TargetLotID uuid.UUID   `json:"target_lot_id" validate:"required"`
}

type SplitResultDTO struct {
	Source  LotDTO `json:"source"`
	Created LotDTO `json:"created"`
}

type service struct {
	repo   *Repository
	store  ledger.Store
	ledger ledger.Service
	tx     txRunner
	outbox outbox.Emitter
	audit  audit.Recorder
}

func NewService(repo *Repository, store ledger.Store, ledgerSvc ledger.Service, tx txRunner, emitter outbox.Emitter, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lots repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("ledger store required")
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
		repo:   repo,
		store:  store,
		ledger: ledgerSvc,
		tx:     tx,
		outbox: emitter,
		audit:  recorder,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*LotDetail, error) {
	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load lot")
	}
	av, err := s.ledger.GetAvailableQuantity(ctx, id)
	if err != nil {
		return nil, err
	}
	photos, err := s.repo.ListPhotos(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load photos")
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase history")
	}

	detail := &LotDetail{
		LotDTO:  ToDTO(*lot, *av),
		Photos:  make([]PhotoDTO, 0, len(photos)),
		History: make([]HistoryDTO, 0, len(history)),
	}
	for _, photo := range photos {
		detail.Photos = append(detail.Photos, toPhotoDTO(photo))
	}
	for _, entry := range history {
		detail.History = append(detail.History, HistoryDTO{AcquisitionID: entry.AcquisitionID, Quantity: entry.Quantity})
	}
	return detail, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[LotDTO], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lots")
	}
	page := pagination.Trim(rows, params.Limit, func(l models.Lot) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})

	ids := make([]uuid.UUID, 0, len(page.Items))
	for _, lot := range page.Items {
		ids = append(ids, lot.ID)
	}
	avail, err := s.ledger.AvailabilityForLots(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &pagination.Page[LotDTO]{Items: make([]LotDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, lot := range page.Items {
		out.Items = append(out.Items, ToDTO(lot, avail[lot.ID]))
	}
	return out, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.LotStatus) (*LotDTO, error) {
	var updated models.Lot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lot, err := s.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		from := lot.Status
		changed, err := ledger.Transition(from, status)
		if err != nil {
			return err
		}
		updated = lot
		if !changed {
			return nil
		}

		if err := s.repo.WithTx(tx).Update(ctx, id, map[string]any{"status": status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update lot status")
		}
		updated.Status = status

		actor := audit.ActorFrom(ctx)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotStatusChanged,
			EntityType: enums.AuditEntityLot,
			EntityID:   id,
			Actor:      actor,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": status},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotStatusChanged,
			AggregateType: enums.AggregateLot,
			AggregateID:   id,
			Actor:         actor,
			Data:          payloads.LotStatusChangedEvent{LotID: id, From: from, To: status},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.withAvailability(ctx, updated)
}

func (s *service) UpdateForSale(ctx context.Context, id uuid.UUID, input UpdateForSaleInput) (*LotDTO, error) {
	if input.ListPricePence.Value != nil && *input.ListPricePence.Value < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "List price cannot be negative")
	}

	var updated models.Lot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lot, err := s.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ledger.CheckOperation(lot.Status, ledger.OpEdit); err != nil {
			return err
		}
		price := input.ListPricePence.Or(lot.ListPricePence)
		if input.ForSale && price == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "List price is required when a lot is for sale")
		}
		note := input.Note.Or(lot.Note)
		if note != nil && strings.TrimSpace(*note) == "" {
			note = nil
		}

		before := map[string]any{"for_sale": lot.ForSale, "list_price_pence": lot.ListPricePence}
		if err := s.repo.WithTx(tx).Update(ctx, id, map[string]any{
			"for_sale":         input.ForSale,
			"list_price_pence": price,
			"note":             note,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update lot for sale")
		}
		lot.ForSale = input.ForSale
		lot.ListPricePence = price
		lot.Note = note
		updated = lot

		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotForSaleChanged,
			EntityType: enums.AuditEntityLot,
			EntityID:   id,
			Before:     before,
			After:      map[string]any{"for_sale": lot.ForSale, "list_price_pence": lot.ListPricePence},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.withAvailability(ctx, updated)
}

// Delete removes a lot with its photos, listings and history. Lots with sale
// records are kept so sales history stays intact. A draft lot was never
// committed to stock, so its bundle items go with it; any other lot still in a
// bundle is kept.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lot, err := s.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if lot.Status != enums.LotStatusDraft {
			if err := ledger.CheckOperation(lot.Status, ledger.OpDelete); err != nil {
				return err
			}
		}

		repo := s.repo.WithTx(tx)
		sales, err := repo.CountSalesItems(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count sales")
		}
		if sales > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "Cannot delete a lot with sale records")
		}
		store := s.store.WithTx(tx)
		dropped := 0
		if lot.Status == enums.LotStatusDraft {
			if dropped, err = dropBundleItems(ctx, store, id); err != nil {
				return err
			}
		} else {
			items, err := repo.CountBundleItems(ctx, id)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bundle items")
			}
			if items > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "Cannot delete a lot that is part of a bundle")
			}
		}

		if err := store.DeleteLots(ctx, []uuid.UUID{id}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete lot")
		}

		actor := audit.ActorFrom(ctx)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotDeleted,
			EntityType: enums.AuditEntityLot,
			EntityID:   id,
			Actor:      actor,
			Before:     map[string]any{"sku": lot.SKU, "quantity": lot.Quantity, "status": lot.Status, "bundle_items": dropped},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLotDeleted,
			AggregateType: enums.AggregateLot,
			AggregateID:   id,
			Actor:         actor,
			Data:          payloads.LotDeletedEvent{LotID: id, SKU: lot.SKU},
		})
	})
}

func dropBundleItems(ctx context.Context, store ledger.Store, lotID uuid.UUID) (int, error) {
	items, err := store.ListBundleItemsForLots(ctx, []uuid.UUID{lotID})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bundle items")
	}
	if len(items) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if err := store.DeleteBundleItems(ctx, ids); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete bundle items")
	}
	return len(ids), nil
}

func (s *service) AddPhoto(ctx context.Context, id uuid.UUID, input AddPhotoInput) (*PhotoDTO, error) {
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid photo kind")
	}
	key := strings.TrimSpace(input.ObjectKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "object key is required")
	}

	var photo models.LotPhoto
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lot, err := s.lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ledger.CheckOperation(lot.Status, ledger.OpEdit); err != nil {
			return err
		}
		photo = models.LotPhoto{LotID: id, Kind: input.Kind, ObjectKey: key}
		if err := s.repo.WithTx(tx).CreatePhoto(ctx, &photo); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create photo")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditLotPhotoAdded,
			EntityType: enums.AuditEntityLot,
			EntityID:   id,
			After:      map[string]any{"photo_id": photo.ID, "kind": photo.Kind},
		})
	})
	if err != nil {
		return nil, err
	}
	dto := toPhotoDTO(photo)
	return &dto, nil
}

func (s *service) Split(ctx context.Context, id uuid.UUID, input ledger.SplitInput) (*SplitResultDTO, error) {
	res, err := s.ledger.SplitLot(ctx, id, input)
	if err != nil {
		return nil, err
	}
	avail, err := s.ledger.AvailabilityForLots(ctx, []uuid.UUID{res.Source.ID, res.Created.ID})
	if err != nil {
		return nil, err
	}
	return &SplitResultDTO{
		Source:  ToDTO(res.Source, avail[res.Source.ID]),
		Created: ToDTO(res.Created, avail[res.Created.ID]),
	}, nil
}

func (s *service) Merge(ctx context.Context, input MergeInput) (*LotDTO, error) {
	merged, err := s.ledger.MergeLots(ctx, input.LotIDs, input.TargetLotID)
	if err != nil {
		return nil, err
	}
	return s.withAvailability(ctx, *merged)
}

func (s *service) lockOne(ctx context.Context, tx *gorm.DB, id uuid.UUID) (models.Lot, error) {
	if id == uuid.Nil {
		return models.Lot{}, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	lots, err := s.ledger.Guard(tx).LockLots(ctx, []uuid.UUID{id})
	if err != nil {
		return models.Lot{}, err
	}
	return lots[id], nil
}

func (s *service) withAvailability(ctx context.Context, lot models.Lot) (*LotDTO, error) {
	av, err := s.ledger.GetAvailableQuantity(ctx, lot.ID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(lot, *av)
	return &dto, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "lot not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
