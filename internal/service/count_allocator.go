package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/shopspring/decimal"
)

// CountAllocator списывает целочисленный остаток варианта, товара без вариантов
// или размерной категории в счётном режиме.
type CountAllocator struct{}

func NewCountAllocator() *CountAllocator { return &CountAllocator{} }

func (*CountAllocator) Strategy() models.AllocationStrategy { return models.StrategyCount }

func (a *CountAllocator) Allocate(ctx context.Context, tx *repository.Repository, req AllocationRequest) (Reservation, error) {
	if req.Quantity <= 0 {
		return Reservation{}, ErrQuantityInvalid
	}

	var (
		ok  bool
		err error
	)
	switch req.Target {
	case models.TargetVariant:
		ok, err = tx.Products.DecrementVariantStock(ctx, req.TargetID, req.Quantity)
	case models.TargetProduct:
		ok, err = tx.Products.DecrementProductStock(ctx, req.TargetID, req.Quantity)
	case models.TargetSizeCategory:
		ok, err = tx.Perishables.DecrementCategoryStock(ctx, req.TargetID, req.Quantity)
	default:
		return Reservation{}, fmt.Errorf("count allocator: unsupported target %q", req.Target)
	}
	if err != nil {
		return Reservation{}, err
	}
	if !ok {
		return Reservation{}, a.explainFailure(ctx, tx, req)
	}

	if req.Target == models.TargetVariant {
		if err := tx.Products.RecomputeAggregateStock(ctx, req.ProductID); err != nil {
			return Reservation{}, err
		}
	}

	return Reservation{Count: &CountReservation{
		Target:    req.Target,
		TargetID:  req.TargetID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}}, nil
}

// Списание не прошло: перечитываем строку и сообщаем причину с доступным количеством.
func (a *CountAllocator) explainFailure(ctx context.Context, tx *repository.Repository, req AllocationRequest) error {
	var (
		stock    int32
		inactive bool
	)
	switch req.Target {
	case models.TargetVariant:
		v, err := tx.Products.GetVariant(ctx, req.ProductID, req.TargetID)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("%w: %s", ErrVariantNotFound, req.TargetID)
		}
		stock, inactive = v.Stock, v.Status == models.StockStatusInactive
	case models.TargetProduct:
		p, err := tx.Products.GetByID(ctx, req.TargetID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, req.TargetID)
		}
		stock, inactive = p.Stock, p.Status != models.ProductStatusActive
	case models.TargetSizeCategory:
		c, err := tx.Perishables.GetSizeCategory(ctx, req.ProductID, req.TargetID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: %s", ErrSizeCategoryNotFound, req.TargetID)
		}
		stock, inactive = c.Stock, c.Status == models.StockStatusInactive
	}

	if inactive {
		return fmt.Errorf("%w: %s", ErrInactive, req.Label)
	}
	return &StockError{
		Target:    req.Label,
		Requested: decimal.NewFromInt32(req.Quantity),
		Available: decimal.NewFromInt32(stock),
		Unit:      "pcs",
	}
}

func (a *CountAllocator) Reverse(ctx context.Context, tx *repository.Repository, res Reservation) error {
	r := res.Count
	if r == nil {
		return fmt.Errorf("count allocator: reservation has no count part")
	}

	// порядок блокировок как при оформлении: сначала строка товара, затем вариант
	if r.Target == models.TargetVariant || r.Target == models.TargetProduct {
		p, err := tx.Products.GetForUpdate(ctx, r.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: product %s no longer exists", ErrInventoryDrift, r.ProductID)
		}
	}

	var (
		ok  bool
		err error
	)
	switch r.Target {
	case models.TargetVariant:
		ok, err = tx.Products.IncrementVariantStock(ctx, r.TargetID, r.Quantity)
	case models.TargetProduct:
		ok, err = tx.Products.IncrementProductStock(ctx, r.TargetID, r.Quantity)
	case models.TargetSizeCategory:
		ok, err = tx.Perishables.IncrementCategoryStock(ctx, r.TargetID, r.Quantity)
	default:
		return fmt.Errorf("count allocator: unsupported target %q", r.Target)
	}
	if err != nil {
		return err
	}
	if !ok {
		// позиция удалена из каталога, возвращать некуда
		return fmt.Errorf("%w: %s %s no longer exists", ErrInventoryDrift, r.Target, r.TargetID)
	}

	if r.Target == models.TargetVariant {
		return tx.Products.RecomputeAggregateStock(ctx, r.ProductID)
	}
	return nil
}

// Счётчики уже списаны при резервировании, при доставке менять нечего.
func (a *CountAllocator) Finalize(context.Context, *repository.Repository, Reservation) error {
	return nil
}
