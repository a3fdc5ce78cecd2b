package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	DB          *gorm.DB
	Products    ProductRepo
	Perishables PerishableRepo
	Units       InventoryUnitRepo
	Allocations AllocationRepo
	Orders      OrderRepo
	OrderItems  OrderItemRepo
	Carts       CartRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:          db,
		Products:    NewProductRepo(db),
		Perishables: NewPerishableRepo(db),
		Units:       NewInventoryUnitRepo(db),
		Allocations: NewAllocationRepo(db),
		Orders:      NewOrderRepo(db),
		OrderItems:  NewOrderItemRepo(db),
		Carts:       NewCartRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Глобальная транзакция на весь набор репо
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}

// SetLocalLockTimeout ограничивает ожидание блокировок строк внутри текущей транзакции.
// Вне транзакции не имеет эффекта.
func (r *Repository) SetLocalLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}
