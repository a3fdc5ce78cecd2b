package dto

import (
	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AddCartItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int32      `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int32 `json:"quantity" binding:"min=0"`
}

type CartItemResponse struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	VariantID    *uuid.UUID      `json:"variant_id,omitempty"`
	VariantLabel string          `json:"variant_label,omitempty"`
	Quantity     int32           `json:"quantity"`
	PriceAtAdd   decimal.Decimal `json:"price_at_add"`
}

type CartResponse struct {
	Items    []CartItemResponse `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

func NewCartResponse(c *models.Cart) CartResponse {
	resp := CartResponse{Items: make([]CartItemResponse, 0, len(c.Items)), Subtotal: c.Subtotal()}
	for _, it := range c.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			VariantID:    it.VariantID,
			VariantLabel: it.VariantLabel,
			Quantity:     it.Quantity,
			PriceAtAdd:   it.PriceAtAdd,
		})
	}
	return resp
}
