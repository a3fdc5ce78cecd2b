package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Единственный поддерживаемый способ оплаты: наложенный платёж.
const PaymentMethodCOD = "cash_on_delivery"

type ShippingZone string

const (
	ZoneInsideHub  ShippingZone = "inside_hub"
	ZoneOutsideHub ShippingZone = "outside_hub"
)

type ItemKind string

const (
	ItemKindStandard   ItemKind = "standard"
	ItemKindPerishable ItemKind = "perishable"
)

type GuestContact struct {
	Name  string `gorm:"type:text"`
	Phone string `gorm:"type:text;index"`
	Email string `gorm:"type:text"`
}

type ShippingAddress struct {
	FullName   string `gorm:"type:text;not null;default:''"`
	Phone      string `gorm:"type:text;not null;default:''"`
	Line1      string `gorm:"type:text;not null;default:''"`
	Line2      string `gorm:"type:text"`
	City       string `gorm:"type:text;not null;default:''"`
	District   string `gorm:"type:text"`
	PostalCode string `gorm:"type:text"`
}

// ShippingCharge: строка расшифровки стоимости доставки.
type ShippingCharge struct {
	Table  string          `json:"table"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type Order struct {
	ID                uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Number            string           `gorm:"type:text;not null;uniqueIndex"`
	UserID            *uuid.UUID       `gorm:"type:uuid;index"`
	Guest             GuestContact     `gorm:"embedded;embeddedPrefix:guest_"`
	ShippingAddress   ShippingAddress  `gorm:"embedded;embeddedPrefix:shipping_"`
	PaymentMethod     string           `gorm:"type:text;not null;default:'cash_on_delivery'"`
	Zone              ShippingZone     `gorm:"type:text;not null"`
	ShippingWeightKg  decimal.Decimal  `gorm:"type:numeric(10,3);not null;default:0"`
	ShippingFee       decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	ShippingBreakdown []ShippingCharge `gorm:"type:jsonb;serializer:json"`
	TotalPrice        decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	TotalAmount       decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	Status            OrderStatus      `gorm:"type:text;not null;default:'pending';index"`
	PaymentStatus     PaymentStatus    `gorm:"type:text;not null;default:'pending'"`
	CancelReason      *string          `gorm:"type:text"`
	CancelledAt       *time.Time
	DeliveredAt       *time.Time

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items       []OrderItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Allocations []Allocation `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) IsGuest() bool { return o.UserID == nil }

// OrderItem: снимок позиции на момент заказа, после создания не меняется.
type OrderItem struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position          int             `gorm:"not null"`
	Kind              ItemKind        `gorm:"type:text;not null"`
	ProductID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductName       string          `gorm:"type:text;not null"`
	VariantID         *uuid.UUID      `gorm:"type:uuid"`
	SizeCategoryID    *uuid.UUID      `gorm:"type:uuid"`
	VariantLabel      string          `gorm:"type:text"`
	Quantity          int32           `gorm:"not null;default:0"`
	RequestedWeightKg decimal.Decimal `gorm:"type:numeric(10,3);not null;default:0"`
	AllocatedWeightKg decimal.Decimal `gorm:"type:numeric(10,3);not null;default:0"`
	UnitPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null"` // за штуку или за кг
	LineTotal         decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }

type AllocationStrategy string

const (
	StrategyCount AllocationStrategy = "count"
	StrategyUnit  AllocationStrategy = "unit"
)

type AllocationTarget string

const (
	TargetProduct      AllocationTarget = "product"
	TargetVariant      AllocationTarget = "variant"
	TargetSizeCategory AllocationTarget = "size_category"
)

type AllocationStatus string

const (
	AllocationReserved  AllocationStatus = "reserved"
	AllocationReleased  AllocationStatus = "released"
	AllocationFinalized AllocationStatus = "finalized"
)

// Allocation: журнал резервирования по строке заказа: то, что нужно для компенсации.
type Allocation struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID          `gorm:"type:uuid;not null;index"`
	OrderItemID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	Strategy    AllocationStrategy `gorm:"type:text;not null"`
	Target      AllocationTarget   `gorm:"type:text;not null"`
	TargetID    uuid.UUID          `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID          `gorm:"type:uuid;not null"`
	Quantity    int32              `gorm:"not null;default:0"`
	UnitIDs     []uuid.UUID        `gorm:"type:jsonb;serializer:json"`
	WeightKg    decimal.Decimal    `gorm:"type:numeric(10,3);not null;default:0"`
	Status      AllocationStatus   `gorm:"type:text;not null;default:'reserved';index"`
	ReleasedAt  *time.Time
	FinalizedAt *time.Time

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Allocation) TableName() string { return "allocations" }
