package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// Bundle sells several lots together; each unit reserves cards from every item.
type Bundle struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name        string             `gorm:"column:name;not null"`
	Description *string            `gorm:"column:description"`
	PricePence  int64              `gorm:"column:price_pence;not null"`
	Quantity    int                `gorm:"column:quantity;not null;default:1"`
	Status      enums.BundleStatus `gorm:"column:status;type:text;not null;default:active"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Bundle) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// BundleItem links a lot to a bundle; Quantity is cards needed per bundle unit.
type BundleItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BundleID  uuid.UUID `gorm:"column:bundle_id;type:uuid;not null;uniqueIndex:ux_bundle_items_bundle_lot"`
	LotID     uuid.UUID `gorm:"column:lot_id;type:uuid;not null;uniqueIndex:ux_bundle_items_bundle_lot;index"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *BundleItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
