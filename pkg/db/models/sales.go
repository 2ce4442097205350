package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Buyer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Platform  string    `gorm:"column:platform;not null;uniqueIndex:ux_buyers_platform_handle"`
	Handle    string    `gorm:"column:handle;not null;uniqueIndex:ux_buyers_platform_handle"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (b *Buyer) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// SalesOrder groups the sale records of one checkout on one platform.
type SalesOrder struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;index"`
	BundleID      *uuid.UUID `gorm:"column:bundle_id;type:uuid;index"`
	OrderGroup    *string    `gorm:"column:order_group"`
	Platform      string     `gorm:"column:platform;not null"`
	FeesPence     int64      `gorm:"column:fees_pence;not null;default:0"`
	ShippingPence int64      `gorm:"column:shipping_pence;not null;default:0"`
	DiscountPence int64      `gorm:"column:discount_pence;not null;default:0"`
	SoldAt        time.Time  `gorm:"column:sold_at;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (o *SalesOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// SalesItem is an append-only fact that qty units of a lot were sold.
type SalesItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SalesOrderID   uuid.UUID `gorm:"column:sales_order_id;type:uuid;not null;index"`
	LotID          uuid.UUID `gorm:"column:lot_id;type:uuid;not null;index"`
	Qty            int       `gorm:"column:qty;not null"`
	SoldPricePence int64     `gorm:"column:sold_price_pence;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *SalesItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// PurchaseAllocation attributes sold units back to the acquisition they came from.
type PurchaseAllocation struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SalesItemID   uuid.UUID `gorm:"column:sales_item_id;type:uuid;not null;index"`
	AcquisitionID uuid.UUID `gorm:"column:acquisition_id;type:uuid;not null;index"`
	Qty           int       `gorm:"column:qty;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (a *PurchaseAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
