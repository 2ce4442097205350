package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// Lot is a group of identical physical cards sharing one classification key.
type Lot struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CardID         string              `gorm:"column:card_id;not null;index:idx_lots_classification"`
	Condition      enums.CardCondition `gorm:"column:condition;type:text;not null;index:idx_lots_classification"`
	Variation      string              `gorm:"column:variation;not null;default:standard;index:idx_lots_classification"`
	SKU            string              `gorm:"column:sku;not null;index"`
	Quantity       int                 `gorm:"column:quantity;not null;default:0"`
	Status         enums.LotStatus     `gorm:"column:status;type:text;not null;default:draft"`
	ForSale        bool                `gorm:"column:for_sale;not null;default:false"`
	ListPricePence *int64              `gorm:"column:list_price_pence"`
	AcquisitionID  *uuid.UUID          `gorm:"column:acquisition_id;type:uuid"`
	Note           *string             `gorm:"column:note"`
	UseAPIImage    bool                `gorm:"column:use_api_image;not null;default:false"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Lot) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// LotPurchaseHistory attributes part of a lot's quantity to an acquisition.
type LotPurchaseHistory struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LotID         uuid.UUID `gorm:"column:lot_id;type:uuid;not null;uniqueIndex:ux_lot_purchase_history_lot_acq"`
	AcquisitionID uuid.UUID `gorm:"column:acquisition_id;type:uuid;not null;uniqueIndex:ux_lot_purchase_history_lot_acq"`
	Quantity      int       `gorm:"column:quantity;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LotPurchaseHistory) TableName() string {
	return "lot_purchase_history"
}

func (h *LotPurchaseHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

// LotPhoto references an uploaded image; the binary lives in object storage.
type LotPhoto struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	LotID     uuid.UUID       `gorm:"column:lot_id;type:uuid;not null;index"`
	Kind      enums.PhotoKind `gorm:"column:kind;type:text;not null"`
	ObjectKey string          `gorm:"column:object_key;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *LotPhoto) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Listing is a marketplace listing of a lot. Rows are only removed with their lot.
type Listing struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LotID      uuid.UUID `gorm:"column:lot_id;type:uuid;not null;index"`
	Platform   string    `gorm:"column:platform;not null"`
	ExternalID *string   `gorm:"column:external_id"`
	Status     string    `gorm:"column:status;not null;default:active"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
