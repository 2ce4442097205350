package lots

import (
	"time"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// LotDTO is a lot with its resolved quantities.
type LotDTO struct {
	ID             uuid.UUID           `json:"id"`
	CardID         string              `json:"card_id"`
	Condition      enums.CardCondition `json:"condition"`
	Variation      string              `json:"variation"`
	SKU            string              `json:"sku"`
	Quantity       int                 `json:"quantity"`
	Sold           int                 `json:"sold_qty"`
	Reserved       int                 `json:"reserved_qty"`
	Available      int                 `json:"available_qty"`
	Status         enums.LotStatus     `json:"status"`
	ForSale        bool                `json:"for_sale"`
	ListPricePence *int64              `json:"list_price_pence,omitempty"`
	AcquisitionID  *uuid.UUID          `json:"acquisition_id,omitempty"`
	Note           *string             `json:"note,omitempty"`
	UseAPIImage    bool                `json:"use_api_image"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type PhotoDTO struct {
	ID        uuid.UUID       `json:"id"`
	Kind      enums.PhotoKind `json:"kind"`
	ObjectKey string          `json:"object_key"`
	CreatedAt time.Time       `json:"created_at"`
}

type HistoryDTO struct {
	AcquisitionID uuid.UUID `json:"acquisition_id"`
	Quantity      int       `json:"quantity"`
}

// LotDetail is the single-lot view.
type LotDetail struct {
	LotDTO
	Photos  []PhotoDTO   `json:"photos"`
	History []HistoryDTO `json:"purchase_history"`
}

// ToDTO maps a lot and its availability. The available figure is clamped for display.
func ToDTO(lot models.Lot, av ledger.Availability) LotDTO {
	return LotDTO{
		ID:             lot.ID,
		CardID:         lot.CardID,
		Condition:      lot.Condition,
		Variation:      lot.Variation,
		SKU:            lot.SKU,
		Quantity:       lot.Quantity,
		Sold:           av.Sold,
		Reserved:       av.Reserved,
		Available:      av.Display(),
		Status:         lot.Status,
		ForSale:        lot.ForSale,
		ListPricePence: lot.ListPricePence,
		AcquisitionID:  lot.AcquisitionID,
		Note:           lot.Note,
		UseAPIImage:    lot.UseAPIImage,
		CreatedAt:      lot.CreatedAt,
		UpdatedAt:      lot.UpdatedAt,
	}
}

func toPhotoDTO(photo models.LotPhoto) PhotoDTO {
	return PhotoDTO{ID: photo.ID, Kind: photo.Kind, ObjectKey: photo.ObjectKey, CreatedAt: photo.CreatedAt}
}
