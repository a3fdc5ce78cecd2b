package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WeightThreshold: доля запрошенного веса, которой достаточно для подбора.
var WeightThreshold = decimal.New(9, -1)

// WeightAllocator подбирает конкретные штуки размерной категории под запрошенный вес.
type WeightAllocator struct {
	now func() time.Time
}

func NewWeightAllocator() *WeightAllocator { return &WeightAllocator{now: time.Now} }

func (*WeightAllocator) Strategy() models.AllocationStrategy { return models.StrategyUnit }

// selectUnits идёт по штукам от лёгких к тяжёлым и останавливается, как только набрано
// не меньше 90% запроса. units должны быть отсортированы по весу. Если порог недостижим,
// возвращает false и суммарный доступный вес.
func selectUnits(units []models.InventoryUnit, requested decimal.Decimal) ([]models.InventoryUnit, decimal.Decimal, bool) {
	threshold := requested.Mul(WeightThreshold)
	total := decimal.Zero
	var selected []models.InventoryUnit
	for _, u := range units {
		if u.Status != models.UnitStatusAvailable {
			continue
		}
		selected = append(selected, u)
		total = total.Add(u.ActualWeightKg)
		if total.GreaterThanOrEqual(threshold) {
			return selected, total, true
		}
	}
	return nil, total, false
}

func (a *WeightAllocator) Allocate(ctx context.Context, tx *repository.Repository, req AllocationRequest) (Reservation, error) {
	if !req.WeightKg.IsPositive() {
		return Reservation{}, ErrWeightInvalid
	}
	if req.Target != models.TargetSizeCategory {
		return Reservation{}, fmt.Errorf("weight allocator: unsupported target %q", req.Target)
	}

	// выборка и смена статуса в одной транзакции, штуки под FOR UPDATE
	units, err := tx.Units.ListAvailableForUpdate(ctx, req.TargetID)
	if err != nil {
		return Reservation{}, err
	}

	selected, total, ok := selectUnits(units, req.WeightKg)
	if !ok {
		return Reservation{}, &StockError{
			Target:    req.Label,
			Requested: req.WeightKg,
			Available: total,
			Unit:      "kg",
		}
	}

	ids := make([]uuid.UUID, 0, len(selected))
	for _, u := range selected {
		ids = append(ids, u.ID)
	}

	n, err := tx.Units.MarkReserved(ctx, ids, req.OrderID, a.now().UTC())
	if err != nil {
		return Reservation{}, err
	}
	if n != int64(len(ids)) {
		return Reservation{}, fmt.Errorf("%w: reserved %d of %d selected units", ErrTransient, n, len(ids))
	}

	if err := tx.Units.ResyncCategoryStock(ctx, req.TargetID); err != nil {
		return Reservation{}, err
	}

	return Reservation{Units: &UnitSetReservation{
		OrderID:        req.OrderID,
		ProductID:      req.ProductID,
		SizeCategoryID: req.TargetID,
		UnitIDs:        ids,
		WeightKg:       total,
	}}, nil
}

func (a *WeightAllocator) Reverse(ctx context.Context, tx *repository.Repository, res Reservation) error {
	r := res.Units
	if r == nil {
		return fmt.Errorf("weight allocator: reservation has no unit set")
	}

	// возвращаются только штуки, всё ещё reserved за этим заказом
	n, err := tx.Units.Release(ctx, r.UnitIDs, r.OrderID)
	if err != nil {
		return err
	}
	if err := tx.Units.ResyncCategoryStock(ctx, r.SizeCategoryID); err != nil {
		return err
	}
	if n != int64(len(r.UnitIDs)) {
		return fmt.Errorf("%w: released %d of %d units of order %s", ErrInventoryDrift, n, len(r.UnitIDs), r.OrderID)
	}
	return nil
}

func (a *WeightAllocator) Finalize(ctx context.Context, tx *repository.Repository, res Reservation) error {
	r := res.Units
	if r == nil {
		return fmt.Errorf("weight allocator: reservation has no unit set")
	}

	n, err := tx.Units.MarkSold(ctx, r.UnitIDs, r.OrderID, a.now().UTC())
	if err != nil {
		return err
	}
	if n != int64(len(r.UnitIDs)) {
		return fmt.Errorf("%w: sold %d of %d units of order %s", ErrInventoryDrift, n, len(r.UnitIDs), r.OrderID)
	}
	return nil
}
