package service

import (
	"context"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItemEvent struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int32           `json:"quantity,omitempty"`
	WeightKg  decimal.Decimal `json:"weight_kg,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderCreatedEvent struct {
	OrderID     uuid.UUID            `json:"order_id"`
	Number      string               `json:"number"`
	UserID      *uuid.UUID           `json:"user_id,omitempty"`
	Guest       *models.GuestContact `json:"guest,omitempty"`
	Items       []OrderItemEvent     `json:"items"`
	TotalPrice  decimal.Decimal      `json:"total_price"`
	ShippingFee decimal.Decimal      `json:"shipping_fee"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Zone        models.ShippingZone  `json:"zone"`
	CreatedAt   time.Time            `json:"created_at"`
}

type OrderCancelledEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	Number      string     `json:"number"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CancelledAt time.Time  `json:"cancelled_at"`
}

type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID          `json:"order_id"`
	Number    string             `json:"number"`
	UserID    *uuid.UUID         `json:"user_id,omitempty"`
	From      models.OrderStatus `json:"from"`
	To        models.OrderStatus `json:"to"`
	ChangedAt time.Time          `json:"changed_at"`
}

type EventBus interface {
	PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, e OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, e OrderStatusChangedEvent) error
}

func newOrderCreatedEvent(o *models.Order) OrderCreatedEvent {
	items := make([]OrderItemEvent, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemEvent{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Variant:   it.VariantLabel,
			Quantity:  it.Quantity,
			WeightKg:  it.RequestedWeightKg,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}

	var guest *models.GuestContact
	if o.IsGuest() {
		g := o.Guest
		guest = &g
	}

	return OrderCreatedEvent{
		OrderID:     o.ID,
		Number:      o.Number,
		UserID:      o.UserID,
		Guest:       guest,
		Items:       items,
		TotalPrice:  o.TotalPrice,
		ShippingFee: o.ShippingFee,
		TotalAmount: o.TotalAmount,
		Zone:        o.Zone,
		CreatedAt:   o.CreatedAt,
	}
}
