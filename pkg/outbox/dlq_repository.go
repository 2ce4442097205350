package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

const (
	maxDLQErrorLen      = 1024
	defaultDLQListLimit = 50
	maxDLQListLimit     = 500
)

// ErrDLQEntryNotFound is returned by RequeueTx for an event that was never
// dead-lettered or has already been requeued.
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

// DLQRepository stores events the publisher gave up on and hands them back
// to the outbox once an operator has fixed the cause.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil, nil when eventID is not dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// DLQFilter narrows List. A zero filter lists the newest entries.
type DLQFilter struct {
	Reason enums.OutboxDLQErrorReason
	Limit  int
}

// List returns dead-lettered events, newest first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultDLQListLimit
	case limit > maxDLQListLimit:
		limit = maxDLQListLimit
	}
	q := r.db.WithContext(ctx)
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// RequeueTx gives a dead-lettered event a fresh attempt budget and removes
// its DLQ entry. The parked outbox row is reset in place; if retention has
// already removed it, the row is recreated from the DLQ copy under the same
// id so consumers still deduplicate on it.
func (r *DLQRepository) RequeueTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDLQEntryNotFound, eventID)
		}
		return nil, err
	}

	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", eventID).
		Updates(map[string]any{"attempt_count": 0, "last_error": nil})
	if res.Error != nil {
		return nil, fmt.Errorf("reset outbox row: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		restored := models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		if err := tx.Create(&restored).Error; err != nil {
			return nil, fmt.Errorf("restore outbox row: %w", err)
		}
	}

	if err := tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error; err != nil {
		return nil, fmt.Errorf("delete dlq entry: %w", err)
	}
	return &entry, nil
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
