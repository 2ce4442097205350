package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
)

const defaultListLimit = 100

// Entry is one audited mutation. Before and After are marshalled as JSON.
type Entry struct {
	Action     enums.AuditAction
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	Actor      string
	Before     any
	After      any
}

// Recorder writes audit entries inside the mutating transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(db *gorm.DB, logg *logger.Logger) *Service {
	return &Service{db: db, logg: logg}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.EntityID == uuid.Nil {
		return fmt.Errorf("audit %s: entity id required", entry.Action)
	}
	if entry.Actor == "" {
		entry.Actor = ActorFrom(ctx)
	}

	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}

	row := models.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Actor:      entry.Actor,
		BeforeJSON: before,
		AfterJSON:  after,
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit entry")
	}
	return nil
}

// ListForEntity returns the newest entries for one entity.
func (s *Service) ListForEntity(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var rows []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return rows, nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
