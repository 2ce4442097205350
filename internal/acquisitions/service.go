package acquisitions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox/payloads"
	"github.com/GregHandsley/pokeflip-sub002/pkg/pagination"
	"github.com/GregHandsley/pokeflip-sub002/pkg/sku"
)

const (
	purchaseSKUPrefix = "PUR-"
	createAttempts    = 3
	defaultSourceType = "other"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages purchases and turns their intake lines into lots.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*AcquisitionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*AcquisitionDTO, error)
	List(ctx context.Context, params pagination.Params) (*pagination.Page[AcquisitionDTO], error)
	Commit(ctx context.Context, id uuid.UUID, input CommitInput) (*CommitResult, error)
}

type CreateInput struct {
	SourceName         string     `json:"source_name" validate:"required,max=200"`
	SourceType         string     `json:"source_type,omitempty" validate:"omitempty,max=50"`
	PurchaseTotalPence int64      `json:"purchase_total_pence" validate:"gte=0"`
	PurchasedAt        *time.Time `json:"purchased_at,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

// IntakeLine is one classified card group from a purchase.
type IntakeLine struct {
	CardID         string              `json:"card_id" validate:"required,max=50"`
	Condition      enums.CardCondition `json:"condition" validate:"required"`
	Variation      string              `json:"variation,omitempty"`
	Quantity       int                 `json:"quantity" validate:"required,gt=0"`
	ForSale        bool                `json:"for_sale"`
	ListPricePence *int64              `json:"list_price_pence,omitempty" validate:"omitempty,gte=0"`
	Note           *string             `json:"note,omitempty"`
}

type CommitInput struct {
	Lines []IntakeLine `json:"lines" validate:"required,min=1,dive"`
	// Close marks the acquisition closed once the lines are committed.
	Close bool `json:"close"`
}

type CommitResult struct {
	Acquisition AcquisitionDTO `json:"acquisition"`
	LotIDs      []uuid.UUID    `json:"lot_ids"`
}

type AcquisitionDTO struct {
	ID                 uuid.UUID               `json:"id"`
	PurchaseSKU        string                  `json:"purchase_sku"`
	SourceName         string                  `json:"source_name"`
	SourceType         string                  `json:"source_type"`
	PurchaseTotalPence int64                   `json:"purchase_total_pence"`
	PurchasedAt        time.Time               `json:"purchased_at"`
	Notes              *string                 `json:"notes,omitempty"`
	Status             enums.AcquisitionStatus `json:"status"`
	LotCount           int64                   `json:"lot_count"`
	UnitCount          int64                   `json:"unit_count"`
	CreatedAt          time.Time               `json:"created_at"`
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outbox.Emitter
	audit  audit.Recorder
}

func NewService(repo *Repository, tx txRunner, emitter outbox.Emitter, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("acquisitions repository required")
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
	return &service{repo: repo, tx: tx, outbox: emitter, audit: recorder}, nil
}

// NextPurchaseSKU returns the sku following last, e.g. PUR-007 -> PUR-008.
func NextPurchaseSKU(last string) (string, error) {
	if last == "" {
		return purchaseSKUPrefix + "001", nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(last, purchaseSKUPrefix))
	if err != nil {
		return "", fmt.Errorf("unparseable purchase sku %q: %w", last, err)
	}
	return fmt.Sprintf("%s%03d", purchaseSKUPrefix, n+1), nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*AcquisitionDTO, error) {
	name := strings.TrimSpace(input.SourceName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source name is required")
	}
	if input.PurchaseTotalPence < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase total cannot be negative")
	}
	sourceType := strings.TrimSpace(input.SourceType)
	if sourceType == "" {
		sourceType = defaultSourceType
	}
	purchasedAt := time.Now().UTC()
	if input.PurchasedAt != nil {
		purchasedAt = input.PurchasedAt.UTC()
	}

	var acq models.Acquisition
	var err error
	// concurrent creates can race for the same sku; the unique index decides
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			last, err := repo.LastPurchaseSKU(ctx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read last purchase sku")
			}
			next, err := NextPurchaseSKU(last)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive purchase sku")
			}
			acq = models.Acquisition{
				PurchaseSKU:        next,
				SourceName:         name,
				SourceType:         sourceType,
				PurchaseTotalPence: input.PurchaseTotalPence,
				PurchasedAt:        purchasedAt,
				Notes:              input.Notes,
				Status:             enums.AcquisitionStatusOpen,
			}
			if err := repo.Create(ctx, &acq); err != nil {
				return err
			}
			return s.audit.Record(ctx, tx, audit.Entry{
				Action:     enums.AuditAcquisitionCreated,
				EntityType: enums.AuditEntityAcquisition,
				EntityID:   acq.ID,
				After:      map[string]any{"purchase_sku": acq.PurchaseSKU, "source_name": acq.SourceName},
			})
		})
		if !db.IsUniqueViolation(err, "") {
			break
		}
	}
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "purchase sku already taken, retry")
		}
		return nil, pkgerrors.Persist(err, "create acquisition")
	}
	dto := toDTO(acq, 0, 0)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*AcquisitionDTO, error) {
	acq, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "acquisition not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load acquisition")
	}
	lots, units, err := s.repo.LotSummary(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarise acquisition")
	}
	dto := toDTO(*acq, lots, units)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*pagination.Page[AcquisitionDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list acquisitions")
	}
	page := pagination.Trim(rows, params.Limit, func(a models.Acquisition) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	out := &pagination.Page[AcquisitionDTO]{Items: make([]AcquisitionDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, acq := range page.Items {
		out.Items = append(out.Items, toDTO(acq, 0, 0))
	}
	return out, nil
}

// Commit creates one draft lot per intake line, each with a purchase-history
// row attributing its full quantity to this acquisition.
func (s *service) Commit(ctx context.Context, id uuid.UUID, input CommitInput) (*CommitResult, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one intake line is required")
	}
	for i, line := range input.Lines {
		if err := validateLine(line); err != nil {
			return nil, err.WithDetails(map[string]any{"line": i})
		}
	}

	result := &CommitResult{LotIDs: make([]uuid.UUID, 0, len(input.Lines))}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		acq, err := repo.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "acquisition not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock acquisition")
		}
		if acq.Status == enums.AcquisitionStatusClosed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "acquisition is closed")
		}

		actor := audit.ActorFrom(ctx)
		for _, line := range input.Lines {
			variation := sku.NormalizeVariation(line.Variation)
			lot := models.Lot{
				CardID:         strings.TrimSpace(line.CardID),
				Condition:      line.Condition,
				Variation:      variation,
				SKU:            sku.Generate(line.CardID, line.Condition, variation),
				Quantity:       line.Quantity,
				Status:         enums.LotStatusDraft,
				ForSale:        line.ForSale,
				ListPricePence: line.ListPricePence,
				AcquisitionID:  &acq.ID,
				Note:           line.Note,
			}
			if err := repo.CreateLot(ctx, &lot); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create lot")
			}
			if err := repo.CreateHistory(ctx, &models.LotPurchaseHistory{
				LotID:         lot.ID,
				AcquisitionID: acq.ID,
				Quantity:      lot.Quantity,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase history")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLotCreated,
				AggregateType: enums.AggregateLot,
				AggregateID:   lot.ID,
				Actor:         actor,
				Data: payloads.LotCreatedEvent{
					LotID:         lot.ID,
					AcquisitionID: lot.AcquisitionID,
					SKU:           lot.SKU,
					Quantity:      lot.Quantity,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit lot created")
			}
			result.LotIDs = append(result.LotIDs, lot.ID)
		}

		if input.Close {
			if err := repo.UpdateStatus(ctx, acq.ID, enums.AcquisitionStatusClosed); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close acquisition")
			}
			acq.Status = enums.AcquisitionStatusClosed
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditAcquisitionCommitted,
			EntityType: enums.AuditEntityAcquisition,
			EntityID:   acq.ID,
			Actor:      actor,
			After:      map[string]any{"lot_ids": result.LotIDs, "closed": input.Close},
		}); err != nil {
			return err
		}

		lots, units, err := repo.LotSummary(ctx, acq.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarise acquisition")
		}
		result.Acquisition = toDTO(*acq, lots, units)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateLine(line IntakeLine) *pkgerrors.Error {
	if strings.TrimSpace(line.CardID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	if !line.Condition.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid condition %q", line.Condition)
	}
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Quantity must be greater than 0")
	}
	if line.ForSale && line.ListPricePence == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "List price is required when a lot is for sale")
	}
	return nil
}

func toDTO(acq models.Acquisition, lots, units int64) AcquisitionDTO {
	return AcquisitionDTO{
		ID:                 acq.ID,
		PurchaseSKU:        acq.PurchaseSKU,
		SourceName:         acq.SourceName,
		SourceType:         acq.SourceType,
		PurchaseTotalPence: acq.PurchaseTotalPence,
		PurchasedAt:        acq.PurchasedAt,
		Notes:              acq.Notes,
		Status:             acq.Status,
		LotCount:           lots,
		UnitCount:          units,
		CreatedAt:          acq.CreatedAt,
	}
}
