package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CompensationService возвращает или закрепляет резервы заказа по журналу allocations.
// Каждая строка журнала обрабатывается в своей транзакции; защита от повтора:
// условный перевод статуса строки (reserved -> released/finalized), одинаковый для обеих стратегий.
type CompensationService struct {
	repo       *repository.Repository
	allocators allocatorSet
	log        *zap.Logger
	now        func() time.Time
	// попыток на одну строку журнала при дедлоках и таймаутах блокировок
	maxAttempts int
}

func NewCompensationService(repo *repository.Repository, log *zap.Logger, allocators ...Allocator) *CompensationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CompensationService{
		repo:        repo,
		allocators:  newAllocatorSet(allocators...),
		log:         log,
		now:         time.Now,
		maxAttempts: defaultMaxTxAttempts,
	}
}

// Compensate возвращает на склад все ещё зарезервированные позиции заказа.
// Повторный запуск безопасен: уже возвращённые или проданные строки пропускаются.
func (c *CompensationService) Compensate(ctx context.Context, orderID uuid.UUID) error {
	return c.settle(ctx, orderID, models.AllocationReleased)
}

// Finalize закрепляет резервы при доставке: весовые штуки переходят в sold.
func (c *CompensationService) Finalize(ctx context.Context, orderID uuid.UUID) error {
	return c.settle(ctx, orderID, models.AllocationFinalized)
}

func (c *CompensationService) settle(ctx context.Context, orderID uuid.UUID, to models.AllocationStatus) error {
	rows, err := c.repo.Allocations.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%w: list allocations: %w", ErrCompensationIncomplete, err)
	}

	var errs error
	for _, a := range rows {
		if a.Status != models.AllocationReserved {
			continue
		}
		if err := c.settleOne(ctx, a, to); err != nil {
			c.log.Error("не удалось обработать резерв",
				zap.String("order_id", orderID.String()),
				zap.String("allocation_id", a.ID.String()),
				zap.String("strategy", string(a.Strategy)),
				zap.String("to", string(to)),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("allocation %s: %w", a.ID, err))
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrCompensationIncomplete, errs)
	}
	return nil
}

func (c *CompensationService) settleOne(ctx context.Context, a models.Allocation, to models.AllocationStatus) error {
	alloc, err := c.allocators.get(a.Strategy)
	if err != nil {
		return err
	}

	var drift error
	attempt := 0
	op := func() error {
		attempt++
		drift = nil
		err := c.repo.WithTx(ctx, func(tx *repository.Repository) error {
			ok, err := tx.Allocations.Transition(ctx, a.ID, models.AllocationReserved, to, c.now().UTC())
			if err != nil {
				return err
			}
			if !ok {
				// строку уже обработал конкурентный запрос
				return nil
			}

			res := reservationFromAllocation(a)
			if to == models.AllocationFinalized {
				err = alloc.Finalize(ctx, tx, res)
			} else {
				err = alloc.Reverse(ctx, tx, res)
			}
			// расхождение фиксируем и коммитим то, что удалось
			if errors.Is(err, ErrInventoryDrift) {
				drift = err
				return nil
			}
			return err
		})
		if err != nil && repository.IsTransient(err) {
			c.log.Warn("конфликт блокировок при обработке резерва, повтор",
				zap.String("allocation_id", a.ID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	return drift
}
