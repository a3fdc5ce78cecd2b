package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AllocationRequest struct {
	OrderID   uuid.UUID
	Target    models.AllocationTarget
	TargetID  uuid.UUID
	ProductID uuid.UUID
	Label     string // для сообщений об ошибках
	Quantity  int32
	WeightKg  decimal.Decimal
}

// CountReservation: списание счётчика остатка (вариант, товар без вариантов или размерная категория).
type CountReservation struct {
	Target    models.AllocationTarget
	TargetID  uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
}

// UnitSetReservation: набор конкретных взвешенных штук, зарезервированных за заказом.
type UnitSetReservation struct {
	OrderID        uuid.UUID
	ProductID      uuid.UUID
	SizeCategoryID uuid.UUID
	UnitIDs        []uuid.UUID
	WeightKg       decimal.Decimal
}

// Reservation заполнена ровно одной из двух форм.
type Reservation struct {
	Count *CountReservation
	Units *UnitSetReservation
}

func (r Reservation) Strategy() models.AllocationStrategy {
	if r.Units != nil {
		return models.StrategyUnit
	}
	return models.StrategyCount
}

func (r Reservation) toAllocation(orderID, itemID uuid.UUID) models.Allocation {
	a := models.Allocation{
		ID:          uuid.New(),
		OrderID:     orderID,
		OrderItemID: itemID,
		Strategy:    r.Strategy(),
		Status:      models.AllocationReserved,
		WeightKg:    decimal.Zero,
	}
	switch {
	case r.Units != nil:
		a.Target = models.TargetSizeCategory
		a.TargetID = r.Units.SizeCategoryID
		a.ProductID = r.Units.ProductID
		a.Quantity = int32(len(r.Units.UnitIDs))
		a.UnitIDs = r.Units.UnitIDs
		a.WeightKg = r.Units.WeightKg
	case r.Count != nil:
		a.Target = r.Count.Target
		a.TargetID = r.Count.TargetID
		a.ProductID = r.Count.ProductID
		a.Quantity = r.Count.Quantity
	}
	return a
}

func reservationFromAllocation(a models.Allocation) Reservation {
	if a.Strategy == models.StrategyUnit {
		return Reservation{Units: &UnitSetReservation{
			OrderID:        a.OrderID,
			ProductID:      a.ProductID,
			SizeCategoryID: a.TargetID,
			UnitIDs:        a.UnitIDs,
			WeightKg:       a.WeightKg,
		}}
	}
	return Reservation{Count: &CountReservation{
		Target:    a.Target,
		TargetID:  a.TargetID,
		ProductID: a.ProductID,
		Quantity:  a.Quantity,
	}}
}

// Allocator: общий контракт для обеих моделей склада. Все методы работают
// внутри транзакции вызывающего.
type Allocator interface {
	Strategy() models.AllocationStrategy
	Allocate(ctx context.Context, tx *repository.Repository, req AllocationRequest) (Reservation, error)
	// Reverse возвращает резерв на склад. Повторный вызов для той же строки не допускается,
	// защита от повтора: в журнале allocations.
	Reverse(ctx context.Context, tx *repository.Repository, res Reservation) error
	// Finalize закрепляет резерв при доставке.
	Finalize(ctx context.Context, tx *repository.Repository, res Reservation) error
}

type allocatorSet map[models.AllocationStrategy]Allocator

func newAllocatorSet(allocs ...Allocator) allocatorSet {
	set := make(allocatorSet, len(allocs))
	for _, a := range allocs {
		set[a.Strategy()] = a
	}
	return set
}

func (s allocatorSet) get(strategy models.AllocationStrategy) (Allocator, error) {
	a, ok := s[strategy]
	if !ok {
		return nil, fmt.Errorf("no allocator for strategy %q", strategy)
	}
	return a, nil
}
