package cleanup

import (
	"context"
	"time"

	"fulfillment-service/internal/repository"

	"go.uber.org/zap"
)

type CleanupService struct {
	repo         *repository.Repository
	log          *zap.Logger
	cartIdleDays int
	now          func() time.Time
}

func NewCleanupService(repo *repository.Repository, cartIdleDays int, log *zap.Logger) *CleanupService {
	if cartIdleDays <= 0 {
		cartIdleDays = 30
	}
	return &CleanupService{
		repo:         repo,
		log:          log,
		cartIdleDays: cartIdleDays,
		now:          time.Now,
	}
}

// ExpireUnits списывает свободные штуки с истёкшим сроком и пересчитывает остаток категорий.
// Зарезервированные штуки не трогаются: ими распоряжается заказ.
func (c *CleanupService) ExpireUnits(ctx context.Context) error {
	var (
		expired    int64
		categories int
	)
	err := c.repo.WithTx(ctx, func(tx *repository.Repository) error {
		cats, n, err := tx.Units.ExpireDue(ctx, c.now().UTC())
		if err != nil {
			return err
		}
		for _, id := range cats {
			if err := tx.Units.ResyncCategoryStock(ctx, id); err != nil {
				return err
			}
		}
		expired, categories = n, len(cats)
		return nil
	})
	if err != nil {
		c.log.Error("failed to expire inventory units", zap.Error(err))
		return err
	}
	if expired > 0 {
		c.log.Info("expired inventory units",
			zap.Int64("count", expired),
			zap.Int("categories", categories))
	}
	return nil
}

// PurgeIdleCarts удаляет корзины, не менявшиеся дольше cartIdleDays дней.
func (c *CleanupService) PurgeIdleCarts(ctx context.Context) error {
	cutoff := c.now().AddDate(0, 0, -c.cartIdleDays)

	n, err := c.repo.Carts.PurgeIdle(ctx, cutoff)
	if err != nil {
		c.log.Error("failed to purge idle carts", zap.Error(err))
		return err
	}
	if n > 0 {
		c.log.Info("purged idle carts", zap.Int64("count", n))
	}
	return nil
}

// RecomputeAggregateStock чинит products.stock у товаров с вариантами, если сумма разошлась.
func (c *CleanupService) RecomputeAggregateStock(ctx context.Context) error {
	n, err := c.repo.Products.RecomputeAllAggregateStock(ctx)
	if err != nil {
		c.log.Error("failed to recompute aggregate stock", zap.Error(err))
		return err
	}
	if n > 0 {
		c.log.Warn("aggregate stock drift fixed", zap.Int64("products", n))
	}
	return nil
}

// RunFullCleanup выполняет все задачи обслуживания
func (c *CleanupService) RunFullCleanup(ctx context.Context) error {
	c.log.Info("starting full cleanup")

	if err := c.ExpireUnits(ctx); err != nil {
		return err
	}

	if err := c.PurgeIdleCarts(ctx); err != nil {
		return err
	}

	if err := c.RecomputeAggregateStock(ctx); err != nil {
		return err
	}

	c.log.Info("full cleanup completed")
	return nil
}
