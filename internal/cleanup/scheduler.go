package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Scheduler struct {
	cleanup *CleanupService
	log     *zap.Logger
	stopCh  chan struct{}
}

func NewScheduler(cleanup *CleanupService, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cleanup: cleanup,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start запускает планировщик задач
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting cleanup scheduler")

	go s.loop(ctx, "expire units", 15*time.Minute, true, s.cleanup.ExpireUnits)
	go s.loop(ctx, "aggregate stock", time.Hour, false, s.cleanup.RecomputeAggregateStock)
	go s.loop(ctx, "idle carts", 6*time.Hour, false, s.cleanup.PurgeIdleCarts)
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	s.log.Info("stopping cleanup scheduler")
	close(s.stopCh)
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, runNow bool, job func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// Выполняем сразу при старте
	if runNow {
		if err := job(ctx); err != nil {
			s.log.Error("initial cleanup failed", zap.String("job", name), zap.Error(err))
		}
	}

	for {
		select {
		case <-ticker.C:
			if err := job(ctx); err != nil {
				s.log.Error("cleanup failed", zap.String("job", name), zap.Error(err))
			}
		case <-s.stopCh:
			s.log.Info("cleanup stopped", zap.String("job", name))
			return
		case <-ctx.Done():
			s.log.Info("cleanup cancelled", zap.String("job", name))
			return
		}
	}
}

// RunOnceNow выполняет полную очистку немедленно (для тестирования)
func (s *Scheduler) RunOnceNow(ctx context.Context) error {
	return s.cleanup.RunFullCleanup(ctx)
}
