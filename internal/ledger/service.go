package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/metrics"
	"github.com/GregHandsley/pokeflip-sub002/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service answers availability questions and applies split/merge.
type Service interface {
	GetAvailableQuantity(ctx context.Context, lotID uuid.UUID) (*Availability, error)
	AvailabilityForLots(ctx context.Context, lotIDs []uuid.UUID) (map[uuid.UUID]Availability, error)
	ValidateBundleChange(ctx context.Context, change BundleChange) (*Rejection, error)
	ValidateSale(ctx context.Context, lotID uuid.UUID, qty int) (*Rejection, error)
	SplitLot(ctx context.Context, lotID uuid.UUID, input SplitInput) (*SplitResult, error)
	MergeLots(ctx context.Context, lotIDs []uuid.UUID, targetID uuid.UUID) (*models.Lot, error)
	// Guard binds ledger checks to a caller-owned transaction.
	Guard(tx *gorm.DB) *Guard
}

type service struct {
	store   Store
	tx      txRunner
	outbox  outbox.Emitter
	audit   audit.Recorder
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService wires the ledger. metrics and logg may be nil.
func NewService(store Store, tx txRunner, emitter outbox.Emitter, recorder audit.Recorder, m *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store required")
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
		store:   store,
		tx:      tx,
		outbox:  emitter,
		audit:   recorder,
		metrics: m,
		logg:    logg,
	}, nil
}

func (s *service) Guard(tx *gorm.DB) *Guard {
	return NewGuard(s.store.WithTx(tx))
}

func (s *service) GetAvailableQuantity(ctx context.Context, lotID uuid.UUID) (*Availability, error) {
	if lotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	avail, err := s.AvailabilityForLots(ctx, []uuid.UUID{lotID})
	if err != nil {
		return nil, err
	}
	av, ok := avail[lotID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lot not found")
	}
	return &av, nil
}

// AvailabilityForLots resolves lots without locking; unknown ids are absent
// from the result.
func (s *service) AvailabilityForLots(ctx context.Context, lotIDs []uuid.UUID) (map[uuid.UUID]Availability, error) {
	lots, err := s.store.FindLots(ctx, lotIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lots")
	}
	return NewGuard(s.store).Availability(ctx, lots, nil)
}

// ValidateBundleChange is a dry run: rows are locked and read but nothing is written.
func (s *service) ValidateBundleChange(ctx context.Context, change BundleChange) (*Rejection, error) {
	start := time.Now()
	var rej *Rejection
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		rej, err = s.Guard(tx).CheckBundleChange(ctx, change)
		return err
	})
	s.metrics.ObserveResult(metrics.OpBundleChange, start, firstErr(err, rej))
	if err != nil {
		return nil, err
	}
	return rej, nil
}

func (s *service) ValidateSale(ctx context.Context, lotID uuid.UUID, qty int) (*Rejection, error) {
	start := time.Now()
	var rej *Rejection
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		_, rej, err = s.Guard(tx).CheckSale(ctx, []SaleLine{{LotID: lotID, Qty: qty}}, nil)
		return err
	})
	s.metrics.ObserveResult(metrics.OpSale, start, firstErr(err, rej))
	if err != nil {
		return nil, err
	}
	return rej, nil
}

func firstErr(err error, rej *Rejection) error {
	if err != nil {
		return err
	}
	if rej != nil {
		return rej.AsError()
	}
	return nil
}
