package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// Acquisition is a purchase of stock from a source (a collection buy, a booster box, ...).
type Acquisition struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseSKU        string                  `gorm:"column:purchase_sku;not null;uniqueIndex:ux_acquisitions_purchase_sku"`
	SourceName         string                  `gorm:"column:source_name;not null"`
	SourceType         string                  `gorm:"column:source_type;not null;default:other"`
	PurchaseTotalPence int64                   `gorm:"column:purchase_total_pence;not null;default:0"`
	PurchasedAt        time.Time               `gorm:"column:purchased_at;not null"`
	Notes              *string                 `gorm:"column:notes"`
	Status             enums.AcquisitionStatus `gorm:"column:status;type:text;not null;default:open"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Acquisition) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
