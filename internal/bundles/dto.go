package bundles

import (
	"time"

	"github.com/google/uuid"

	"github.com/GregHandsley/pokeflip-sub002/internal/ledger"
	"github.com/GregHandsley/pokeflip-sub002/internal/sales"
	"github.com/GregHandsley/pokeflip-sub002/pkg/db/models"
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
)

// ItemInput adds CardsNeeded cards of a lot to every bundle unit.
type ItemInput struct {
	LotID       uuid.UUID `json:"lot_id" validate:"required"`
	CardsNeeded int       `json:"cards_needed" validate:"omitempty,gt=0"`
}

type CreateInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description *string     `json:"description,omitempty"`
	PricePence  int64       `json:"price_pence" validate:"gte=0"`
	Quantity    int         `json:"quantity" validate:"omitempty,gt=0"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateInput patches a bundle; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty"`
	PricePence  *int64  `json:"price_pence,omitempty" validate:"omitempty,gte=0"`
	Quantity    *int    `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

func (u UpdateInput) empty() bool {
	return u.Name == nil && u.Description == nil && u.PricePence == nil && u.Quantity == nil
}

type UpdateItemInput struct {
	CardsNeeded int `json:"cards_needed" validate:"required,gt=0"`
}

// ValidateInput is a proposed bundle shape checked without writing. An
// omitted quantity checks the items at the bundle's current quantity.
type ValidateInput struct {
	Quantity *int                      `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Items    []ledger.BundleItemChange `json:"items" validate:"dive"`
}

type SellInput struct {
	Quantity      int              `json:"quantity" validate:"omitempty,gt=0"`
	Buyer         sales.BuyerInput `json:"buyer" validate:"required"`
	OrderGroup    *string          `json:"order_group,omitempty" validate:"omitempty,max=200"`
	FeesPence     int64            `json:"fees_pence" validate:"gte=0"`
	ShippingPence int64            `json:"shipping_pence" validate:"gte=0"`
	DiscountPence int64            `json:"discount_pence" validate:"gte=0"`
	SoldAt        *time.Time       `json:"sold_at,omitempty"`
}

type ItemDTO struct {
	ID          uuid.UUID `json:"id"`
	LotID       uuid.UUID `json:"lot_id"`
	CardsNeeded int       `json:"cards_needed"`
}

type BundleDTO struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description *string            `json:"description,omitempty"`
	PricePence  int64              `json:"price_pence"`
	Quantity    int                `json:"quantity"`
	Status      enums.BundleStatus `json:"status"`
	Items       []ItemDTO          `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type SellResult struct {
	Bundle BundleDTO      `json:"bundle"`
	Order  sales.OrderDTO `json:"order"`
}

func toDTO(bundle models.Bundle, items []models.BundleItem) BundleDTO {
	dto := BundleDTO{
		ID:          bundle.ID,
		Name:        bundle.Name,
		Description: bundle.Description,
		PricePence:  bundle.PricePence,
		Quantity:    bundle.Quantity,
		Status:      bundle.Status,
		Items:       make([]ItemDTO, 0, len(items)),
		CreatedAt:   bundle.CreatedAt,
		UpdatedAt:   bundle.UpdatedAt,
	}
	for _, item := range items {
		dto.Items = append(dto.Items, ItemDTO{ID: item.ID, LotID: item.LotID, CardsNeeded: item.Quantity})
	}
	return dto
}
