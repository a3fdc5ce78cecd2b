package service

import (
	"context"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine: строка корзины при оформлении. Для обычного товара задаётся Quantity,
// для весового: SizeCategoryID и WeightKg (в счётном режиме ещё и Quantity штук).
type OrderLine struct {
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	SizeCategoryID  *uuid.UUID
	Quantity        int32
	WeightKg        decimal.Decimal
	ClientUnitPrice decimal.NullDecimal
}

func (l OrderLine) IsPerishable() bool { return l.SizeCategoryID != nil }

type CreateOrderInput struct {
	Guest           *models.GuestContact // только без авторизации
	Lines           []OrderLine
	ShippingAddress models.ShippingAddress
	Zone            string
	ClientTotal     decimal.Decimal // сумма товаров без доставки
}

type QuoteInput struct {
	Lines []OrderLine
	Zone  string
}

type ListFilter struct {
	UserID *uuid.UUID
	Status *models.OrderStatus
	Limit  int
	Offset int
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	GetShippingQuote(ctx context.Context, in QuoteInput) (*ShippingQuote, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]*models.Order, int64, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error)
	TransitionOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (*models.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

type AddCartItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int32
}

type CartService interface {
	GetCart(ctx context.Context) (*models.Cart, error)
	AddItem(ctx context.Context, in AddCartItemInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int32) (*models.Cart, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context) error
}
