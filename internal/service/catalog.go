package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineSnapshot: состояние позиции каталога в момент проверки заказа.
type LineSnapshot struct {
	Kind           models.ItemKind
	Strategy       models.AllocationStrategy
	Target         models.AllocationTarget
	TargetID       uuid.UUID
	ProductID      uuid.UUID
	ProductName    string
	VariantID      *uuid.UUID
	SizeCategoryID *uuid.UUID
	Label          string
	UnitPrice      decimal.Decimal // за штуку или за кг
	Stock          int32
	WeightKg       decimal.Decimal // вес одной штуки для доставки, только для обычных товаров
}

// CatalogReader читает цену, остаток и статус позиции. С lock=true строки блокируются
// (FOR UPDATE) в рамках транзакции tx, и конкурентные списания выстраиваются в очередь.
type CatalogReader struct{}

func (CatalogReader) Snapshot(ctx context.Context, tx *repository.Repository, line OrderLine, lock bool) (*LineSnapshot, error) {
	if line.VariantID != nil && line.SizeCategoryID != nil {
		return nil, ErrAmbiguousLine
	}
	if line.IsPerishable() {
		return snapshotSizeCategory(ctx, tx, line.ProductID, *line.SizeCategoryID, lock)
	}
	return snapshotProduct(ctx, tx, line.ProductID, line.VariantID, lock)
}

func snapshotProduct(ctx context.Context, tx *repository.Repository, productID uuid.UUID, variantID *uuid.UUID, lock bool) (*LineSnapshot, error) {
	var (
		p   *models.Product
		err error
	)
	if lock {
		p, err = tx.Products.GetForUpdate(ctx, productID)
	} else {
		p, err = tx.Products.GetByID(ctx, productID)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if p.Status != models.ProductStatusActive {
		return nil, fmt.Errorf("%w: product %q", ErrInactive, p.Name)
	}

	if !p.HasVariants {
		if variantID != nil {
			return nil, fmt.Errorf("%w: product %q has no variants", ErrVariantNotFound, p.Name)
		}
		return &LineSnapshot{
			Kind:        models.ItemKindStandard,
			Strategy:    models.StrategyCount,
			Target:      models.TargetProduct,
			TargetID:    p.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.EffectivePrice(),
			Stock:       p.Stock,
			WeightKg:    p.WeightKg,
		}, nil
	}

	v, err := snapshotVariant(ctx, tx, p.ID, variantID, lock)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: product %q", ErrVariantNotFound, p.Name)
	}
	if v.Status == models.StockStatusInactive {
		return nil, fmt.Errorf("%w: variant %q of %q", ErrInactive, v.Label, p.Name)
	}

	weight := p.WeightKg
	if v.WeightKg.Valid {
		weight = v.WeightKg.Decimal
	}
	vid := v.ID

	return &LineSnapshot{
		Kind:        models.ItemKindStandard,
		Strategy:    models.StrategyCount,
		Target:      models.TargetVariant,
		TargetID:    v.ID,
		ProductID:   p.ID,
		ProductName: p.Name,
		VariantID:   &vid,
		Label:       v.Label,
		UnitPrice:   v.EffectivePrice(),
		Stock:       v.Stock,
		WeightKg:    weight,
	}, nil
}

// Без явного варианта берём вариант по умолчанию.
func snapshotVariant(ctx context.Context, tx *repository.Repository, productID uuid.UUID, variantID *uuid.UUID, lock bool) (*models.Variant, error) {
	var id uuid.UUID
	if variantID != nil {
		id = *variantID
	} else {
		def, err := tx.Products.DefaultVariant(ctx, productID)
		if err != nil || def == nil {
			return nil, err
		}
		id = def.ID
	}

	if lock {
		return tx.Products.GetVariantForUpdate(ctx, productID, id)
	}
	return tx.Products.GetVariant(ctx, productID, id)
}

func snapshotSizeCategory(ctx context.Context, tx *repository.Repository, productID, categoryID uuid.UUID, lock bool) (*LineSnapshot, error) {
	var (
		p   *models.PerishableProduct
		c   *models.SizeCategory
		err error
	)
	if lock {
		p, err = tx.Perishables.GetForShare(ctx, productID)
	} else {
		p, err = tx.Perishables.GetByID(ctx, productID)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if p.Status != models.ProductStatusActive {
		return nil, fmt.Errorf("%w: product %q", ErrInactive, p.Name)
	}

	if lock {
		c, err = tx.Perishables.GetSizeCategoryForUpdate(ctx, productID, categoryID)
	} else {
		c, err = tx.Perishables.GetSizeCategory(ctx, productID, categoryID)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrSizeCategoryNotFound, categoryID)
	}
	if c.Status == models.StockStatusInactive {
		return nil, fmt.Errorf("%w: size %q of %q", ErrInactive, c.Label, p.Name)
	}

	strategy := models.StrategyCount
	if p.InventoryMode == models.InventoryModeUnit {
		strategy = models.StrategyUnit
	}
	cid := c.ID

	return &LineSnapshot{
		Kind:           models.ItemKindPerishable,
		Strategy:       strategy,
		Target:         models.TargetSizeCategory,
		TargetID:       c.ID,
		ProductID:      p.ID,
		ProductName:    p.Name,
		SizeCategoryID: &cid,
		Label:          c.Label,
		UnitPrice:      c.EffectivePricePerKg(),
		Stock:          c.Stock,
		WeightKg:       decimal.Zero,
	}, nil
}
