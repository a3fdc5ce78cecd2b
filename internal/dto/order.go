package dto

import (
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderLineRequest struct {
	ProductID      uuid.UUID        `json:"product_id" binding:"required"`
	VariantID      *uuid.UUID       `json:"variant_id,omitempty"`
	SizeCategoryID *uuid.UUID       `json:"size_category_id,omitempty"`
	Quantity       int32            `json:"quantity"`
	WeightKg       *decimal.Decimal `json:"weight_kg,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
}

func (r OrderLineRequest) toLine() service.OrderLine {
	l := service.OrderLine{
		ProductID:      r.ProductID,
		VariantID:      r.VariantID,
		SizeCategoryID: r.SizeCategoryID,
		Quantity:       r.Quantity,
	}
	if r.WeightKg != nil {
		l.WeightKg = *r.WeightKg
	}
	if r.UnitPrice != nil {
		l.ClientUnitPrice = decimal.NewNullDecimal(*r.UnitPrice)
	}
	return l
}

func toLines(in []OrderLineRequest) []service.OrderLine {
	out := make([]service.OrderLine, 0, len(in))
	for _, r := range in {
		out = append(out, r.toLine())
	}
	return out
}

type GuestRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email,omitempty"`
}

type AddressDTO struct {
	FullName   string `json:"full_name" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	District   string `json:"district,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type CreateOrderRequest struct {
	Guest           *GuestRequest      `json:"guest,omitempty"`
	Lines           []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
	ShippingAddress AddressDTO         `json:"shipping_address" binding:"required"`
	Zone            string             `json:"zone"`
	ClientTotal     decimal.Decimal    `json:"client_total"`
}

func (r CreateOrderRequest) ToInput() service.CreateOrderInput {
	in := service.CreateOrderInput{
		Lines: toLines(r.Lines),
		ShippingAddress: models.ShippingAddress{
			FullName:   r.ShippingAddress.FullName,
			Phone:      r.ShippingAddress.Phone,
			Line1:      r.ShippingAddress.Line1,
			Line2:      r.ShippingAddress.Line2,
			City:       r.ShippingAddress.City,
			District:   r.ShippingAddress.District,
			PostalCode: r.ShippingAddress.PostalCode,
		},
		Zone:        r.Zone,
		ClientTotal: r.ClientTotal,
	}
	if r.Guest != nil {
		in.Guest = &models.GuestContact{Name: r.Guest.Name, Phone: r.Guest.Phone, Email: r.Guest.Email}
	}
	return in
}

type QuoteRequest struct {
	Lines []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
	Zone  string             `json:"zone"`
}

func (r QuoteRequest) ToInput() service.QuoteInput {
	return service.QuoteInput{Lines: toLines(r.Lines), Zone: r.Zone}
}

type CancelOrderRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderItemResponse struct {
	ID                uuid.UUID       `json:"id"`
	Kind              string          `json:"kind"`
	ProductID         uuid.UUID       `json:"product_id"`
	ProductName       string          `json:"product_name"`
	VariantID         *uuid.UUID      `json:"variant_id,omitempty"`
	SizeCategoryID    *uuid.UUID      `json:"size_category_id,omitempty"`
	VariantLabel      string          `json:"variant_label,omitempty"`
	Quantity          int32           `json:"quantity"`
	RequestedWeightKg decimal.Decimal `json:"requested_weight_kg"`
	AllocatedWeightKg decimal.Decimal `json:"allocated_weight_kg"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	LineTotal         decimal.Decimal `json:"line_total"`
}

type OrderResponse struct {
	ID                uuid.UUID               `json:"id"`
	Number            string                  `json:"number"`
	UserID            *uuid.UUID              `json:"user_id,omitempty"`
	Guest             *GuestRequest           `json:"guest,omitempty"`
	ShippingAddress   AddressDTO              `json:"shipping_address"`
	PaymentMethod     string                  `json:"payment_method"`
	PaymentStatus     string                  `json:"payment_status"`
	Zone              string                  `json:"zone"`
	Status            string                  `json:"status"`
	ShippingWeightKg  decimal.Decimal         `json:"shipping_weight_kg"`
	ShippingFee       decimal.Decimal         `json:"shipping_fee"`
	ShippingBreakdown []models.ShippingCharge `json:"shipping_breakdown,omitempty"`
	TotalPrice        decimal.Decimal         `json:"total_price"`
	TotalAmount       decimal.Decimal         `json:"total_amount"`
	CancelReason      *string                 `json:"cancel_reason,omitempty"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	Items             []OrderItemResponse     `json:"items"`
	Warnings          []string                `json:"warnings,omitempty"`
}

func NewOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:     o.ID,
		Number: o.Number,
		UserID: o.UserID,
		ShippingAddress: AddressDTO{
			FullName:   o.ShippingAddress.FullName,
			Phone:      o.ShippingAddress.Phone,
			Line1:      o.ShippingAddress.Line1,
			Line2:      o.ShippingAddress.Line2,
			City:       o.ShippingAddress.City,
			District:   o.ShippingAddress.District,
			PostalCode: o.ShippingAddress.PostalCode,
		},
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     string(o.PaymentStatus),
		Zone:              string(o.Zone),
		Status:            string(o.Status),
		ShippingWeightKg:  o.ShippingWeightKg,
		ShippingFee:       o.ShippingFee,
		ShippingBreakdown: o.ShippingBreakdown,
		TotalPrice:        o.TotalPrice,
		TotalAmount:       o.TotalAmount,
		CancelReason:      o.CancelReason,
		CancelledAt:       o.CancelledAt,
		DeliveredAt:       o.DeliveredAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		Items:             make([]OrderItemResponse, 0, len(o.Items)),
	}
	if o.IsGuest() {
		resp.Guest = &GuestRequest{Name: o.Guest.Name, Phone: o.Guest.Phone, Email: o.Guest.Email}
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:                it.ID,
			Kind:              string(it.Kind),
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			VariantID:         it.VariantID,
			SizeCategoryID:    it.SizeCategoryID,
			VariantLabel:      it.VariantLabel,
			Quantity:          it.Quantity,
			RequestedWeightKg: it.RequestedWeightKg,
			AllocatedWeightKg: it.AllocatedWeightKg,
			UnitPrice:         it.UnitPrice,
			LineTotal:         it.LineTotal,
		})
	}
	return resp
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
