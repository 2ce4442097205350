package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// LotCreatedEvent is emitted when intake commits a new lot.
type LotCreatedEvent struct {
	LotID         uuid.UUID  `json:"lot_id"`
	AcquisitionID *uuid.UUID `json:"acquisition_id,omitempty"`
	SKU           string     `json:"sku"`
	Quantity      int        `json:"quantity"`
}

// LotSplitEvent reports the quantities on both sides of a split.
type LotSplitEvent struct {
	SourceLotID    uuid.UUID `json:"source_lot_id"`
	CreatedLotID   uuid.UUID `json:"created_lot_id"`
	SplitQuantity  int       `json:"split_quantity"`
	SourceQuantity int       `json:"source_quantity"`
}

// LotsMergedEvent lists the lots folded into the target.
type LotsMergedEvent struct {
	TargetLotID  uuid.UUID   `json:"target_lot_id"`
	MergedLotIDs []uuid.UUID `json:"merged_lot_ids"`
	Quantity     int         `json:"quantity"`
}

type LotStatusChangedEvent struct {
	LotID uuid.UUID       `json:"lot_id"`
	From  enums.LotStatus `json:"from"`
	To    enums.LotStatus `json:"to"`
}

type LotDeletedEvent struct {
	LotID uuid.UUID `json:"lot_id"`
	SKU   string    `json:"sku"`
}

// SaleLine is one lot's contribution to a recorded order.
type SaleLine struct {
	LotID          uuid.UUID `json:"lot_id"`
	Qty            int       `json:"qty"`
	SoldPricePence int64     `json:"sold_price_pence"`
}

type SaleRecordedEvent struct {
	SalesOrderID uuid.UUID  `json:"sales_order_id"`
	BundleID     *uuid.UUID `json:"bundle_id,omitempty"`
	Platform     string     `json:"platform"`
	Lines        []SaleLine `json:"lines"`
	SoldAt       time.Time  `json:"sold_at"`
}

type BundleChangedEvent struct {
	BundleID uuid.UUID          `json:"bundle_id"`
	Quantity int                `json:"quantity"`
	Status   enums.BundleStatus `json:"status"`
}

type BundleSoldEvent struct {
	BundleID     uuid.UUID `json:"bundle_id"`
	SalesOrderID uuid.UUID `json:"sales_order_id"`
	QuantitySold int       `json:"quantity_sold"`
	Remaining    int       `json:"remaining"`
}

type BundleDeletedEvent struct {
	BundleID uuid.UUID `json:"bundle_id"`
}
