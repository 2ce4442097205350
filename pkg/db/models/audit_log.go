package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

type AuditLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Action     enums.AuditAction     `gorm:"column:action;type:text;not null"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;type:text;not null;index:idx_audit_log_entity"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index:idx_audit_log_entity"`
	Actor      string                `gorm:"column:actor;not null;default:system"`
	BeforeJSON json.RawMessage       `gorm:"column:before_json;type:jsonb"`
	AfterJSON  json.RawMessage       `gorm:"column:after_json;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
