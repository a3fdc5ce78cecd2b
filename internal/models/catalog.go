package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// StockStatus: статус продаваемой позиции (вариант товара или размерная категория).
type StockStatus string

const (
	StockStatusActive     StockStatus = "active"
	StockStatusOutOfStock StockStatus = "out_of_stock"
	StockStatusInactive   StockStatus = "inactive"
)

type Product struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string              `gorm:"type:text;not null"`
	Price       decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0"`
	SalePrice   decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Stock       int32               `gorm:"not null;default:0"` // при HasVariants = сумма по вариантам
	Sold        int32               `gorm:"not null;default:0"`
	WeightKg    decimal.Decimal     `gorm:"type:numeric(10,3);not null;default:0"`
	Status      ProductStatus       `gorm:"type:text;not null;default:'active';index"`
	HasVariants bool                `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Variants []Variant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (Product) TableName() string { return "products" }

func (p *Product) EffectivePrice() decimal.Decimal {
	return effectivePrice(p.Price, p.SalePrice)
}

type Variant struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID           `gorm:"type:uuid;not null;index"`
	Label     string              `gorm:"type:text;not null"`
	Price     decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0"`
	SalePrice decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Stock     int32               `gorm:"not null;default:0"`
	Sold      int32               `gorm:"not null;default:0"`
	WeightKg  decimal.NullDecimal `gorm:"type:numeric(10,3)"` // переопределяет вес товара
	Status    StockStatus         `gorm:"type:text;not null;default:'active'"`
	IsDefault bool                `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Variant) TableName() string { return "product_variants" }

func (v *Variant) EffectivePrice() decimal.Decimal {
	return effectivePrice(v.Price, v.SalePrice)
}

type InventoryMode string

const (
	// InventoryModeCount: размерная категория хранит только счётчик штук.
	InventoryModeCount InventoryMode = "count"
	// InventoryModeUnit: каждая штука учитывается отдельной записью InventoryUnit со своим весом.
	InventoryModeUnit InventoryMode = "unit"
)

type PerishableProduct struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string        `gorm:"type:text;not null"`
	Status        ProductStatus `gorm:"type:text;not null;default:'active';index"`
	InventoryMode InventoryMode `gorm:"type:text;not null;default:'count'"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	SizeCategories []SizeCategory `gorm:"foreignKey:PerishableProductID;constraint:OnDelete:CASCADE"`
}

func (PerishableProduct) TableName() string { return "perishable_products" }

type SizeCategory struct {
	ID                  uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PerishableProductID uuid.UUID           `gorm:"type:uuid;not null;index"`
	Label               string              `gorm:"type:text;not null"`
	PricePerKg          decimal.Decimal     `gorm:"type:numeric(12,2);not null;default:0"`
	SalePricePerKg      decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Stock               int32               `gorm:"not null;default:0"` // штуки, не килограммы
	Sold                int32               `gorm:"not null;default:0"`
	Status              StockStatus         `gorm:"type:text;not null;default:'active'"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (SizeCategory) TableName() string { return "size_categories" }

func (c *SizeCategory) EffectivePricePerKg() decimal.Decimal {
	return effectivePrice(c.PricePerKg, c.SalePricePerKg)
}

type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusReserved  UnitStatus = "reserved"
	UnitStatusSold      UnitStatus = "sold"
	UnitStatusExpired   UnitStatus = "expired"
	UnitStatusDamaged   UnitStatus = "damaged"
)

type InventoryUnit struct {
	ID                  uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PerishableProductID uuid.UUID       `gorm:"type:uuid;not null;index"`
	SizeCategoryID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ActualWeightKg      decimal.Decimal `gorm:"type:numeric(10,3);not null"`
	Status              UnitStatus      `gorm:"type:text;not null;default:'available';index"`
	ReservedOrderID     *uuid.UUID      `gorm:"type:uuid;index"`
	SoldOrderID         *uuid.UUID      `gorm:"type:uuid;index"`
	ReservedAt          *time.Time
	SoldAt              *time.Time
	ExpiresAt           *time.Time

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (InventoryUnit) TableName() string { return "inventory_units" }

func effectivePrice(price decimal.Decimal, sale decimal.NullDecimal) decimal.Decimal {
	if sale.Valid && sale.Decimal.IsPositive() && sale.Decimal.LessThanOrEqual(price) {
		return sale.Decimal
	}
	return price
}
