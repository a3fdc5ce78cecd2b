package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReasonLen = 500

// Допустимые переходы. cancelled и delivered: терминальные; из shipped: только доставка.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled:
		return true
	}
	return false
}

// LifecycleManager меняет статусы заказа и запускает компенсацию там, где переход
// освобождает склад.
type LifecycleManager struct {
	repo   *repository.Repository
	comp   *CompensationService
	events EventBus
	cache  Cache
	log    *zap.Logger
	now    func() time.Time
}

func NewLifecycleManager(repo *repository.Repository, comp *CompensationService, events EventBus, cache Cache, log *zap.Logger) *LifecycleManager {
	if cache == nil {
		cache = NoopCache()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleManager{
		repo:   repo,
		comp:   comp,
		events: events,
		cache:  cache,
		log:    log,
		now:    time.Now,
	}
}

func (m *LifecycleManager) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	ord, err := m.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

// Владелец заказа или админ. Гостевые заказы может отменить только админ.
func (m *LifecycleManager) authorize(ctx context.Context, ord *models.Order) error {
	uid, role, err := requireAuth(ctx)
	if err != nil {
		return err
	}
	if role == RoleAdmin {
		return nil
	}
	if ord.UserID == nil || *ord.UserID != uid {
		return ErrForbidden
	}
	return nil
}

// Cancel отменяет заказ и один раз возвращает резервы. Повторная отмена уже отменённого
// заказа заново прогоняет компенсацию: уже возвращённые строки пропускаются.
// Ошибка компенсации не откатывает смену статуса и возвращается вместе с заказом.
func (m *LifecycleManager) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	ord, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, ord); err != nil {
		return nil, err
	}
	return m.cancel(ctx, ord, sanitizeReason(reason))
}

func (m *LifecycleManager) cancel(ctx context.Context, ord *models.Order, reason *string) (*models.Order, error) {
	from := ord.Status
	if from == models.OrderStatusCancelled {
		return m.finishCancel(ctx, ord.ID, from, reason, false)
	}
	if !CanTransition(from, models.OrderStatusCancelled) {
		return nil, &TransitionError{From: from, To: models.OrderStatusCancelled}
	}

	now := m.now().UTC()
	extra := map[string]any{
		"cancelled_at":   now,
		"payment_status": models.PaymentStatusCancelled,
	}
	if reason != nil {
		extra["cancel_reason"] = *reason
	}

	ok, err := m.repo.Orders.UpdateStatus(ctx, ord.ID, from, models.OrderStatusCancelled, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		// статус успели поменять; отмена конкурентным запросом: тоже успех
		cur, err := m.load(ctx, ord.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status != models.OrderStatusCancelled {
			return nil, &TransitionError{From: cur.Status, To: models.OrderStatusCancelled}
		}
		return m.finishCancel(ctx, ord.ID, from, reason, false)
	}
	return m.finishCancel(ctx, ord.ID, from, reason, true)
}

func (m *LifecycleManager) finishCancel(ctx context.Context, id uuid.UUID, from models.OrderStatus, reason *string, changed bool) (*models.Order, error) {
	compErr := m.comp.Compensate(ctx, id)

	ord, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, ord)
	if changed {
		m.publishCancelled(ctx, ord, reason)
		m.log.Info("заказ отменён",
			zap.String("order_id", ord.ID.String()),
			zap.String("from", string(from)))
	}
	return ord, compErr
}

// Transition применяет переход статуса. Отмена уходит в Cancel-логику, доставка
// закрепляет весовые резервы и подтверждает оплату наложенным платежом.
func (m *LifecycleManager) Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	if !validStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	ord, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if to == models.OrderStatusCancelled {
		return m.cancel(ctx, ord, nil)
	}

	from := ord.Status
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}

	extra := map[string]any{}
	if to == models.OrderStatusDelivered {
		extra["delivered_at"] = m.now().UTC()
		if ord.PaymentMethod == models.PaymentMethodCOD {
			extra["payment_status"] = models.PaymentStatusCompleted
		}
	}

	ok, err := m.repo.Orders.UpdateStatus(ctx, id, from, to, extra)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := m.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{From: cur.Status, To: to}
	}

	var settleErr error
	if to == models.OrderStatusDelivered {
		settleErr = m.comp.Finalize(ctx, id)
	}

	ord, err = m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, ord)
	if m.events != nil {
		if err := m.events.PublishOrderStatusChanged(ctx, OrderStatusChangedEvent{
			OrderID:   ord.ID,
			Number:    ord.Number,
			UserID:    ord.UserID,
			From:      from,
			To:        to,
			ChangedAt: ord.UpdatedAt,
		}); err != nil {
			m.log.Warn("не удалось отправить событие смены статуса", zap.String("order_id", ord.ID.String()), zap.Error(err))
		}
	}
	return ord, settleErr
}

// Delete удаляет заказ, пока он pending. Сначала заказ переводится в cancelled, чтобы
// параллельное подтверждение не прошло, затем возвращаются резервы; удаление: только
// если компенсация прошла полностью.
func (m *LifecycleManager) Delete(ctx context.Context, id uuid.UUID) error {
	ord, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if err := m.authorize(ctx, ord); err != nil {
		return err
	}
	if ord.Status != models.OrderStatusPending {
		return &TransitionError{From: ord.Status, To: models.OrderStatusCancelled}
	}

	reason := "deleted"
	if _, err := m.cancel(ctx, ord, &reason); err != nil {
		return err
	}

	if _, err := m.repo.Orders.Delete(ctx, id); err != nil {
		return err
	}
	m.invalidate(ctx, ord)
	m.log.Info("заказ удалён", zap.String("order_id", id.String()))
	return nil
}

func (m *LifecycleManager) invalidate(ctx context.Context, ord *models.Order) {
	keys := make([]string, 0, len(ord.Items))
	for _, it := range ord.Items {
		keys = append(keys, productCacheKey(it.ProductID))
	}
	if len(keys) > 0 {
		if err := m.cache.Del(ctx, keys...); err != nil {
			m.log.Warn("не удалось инвалидировать кэш товаров", zap.Error(err))
		}
	}
	if ord.UserID != nil {
		if err := m.cache.DelPattern(ctx, orderListCachePattern(*ord.UserID)); err != nil {
			m.log.Warn("не удалось инвалидировать кэш заказов", zap.Error(err))
		}
	}
}

func (m *LifecycleManager) publishCancelled(ctx context.Context, ord *models.Order, reason *string) {
	if m.events == nil {
		return
	}
	ev := OrderCancelledEvent{
		OrderID: ord.ID,
		Number:  ord.Number,
		UserID:  ord.UserID,
	}
	if ord.CancelledAt != nil {
		ev.CancelledAt = *ord.CancelledAt
	}
	if reason != nil {
		ev.Reason = *reason
	}
	if err := m.events.PublishOrderCancelled(ctx, ev); err != nil {
		m.log.Warn("не удалось отправить событие отмены", zap.String("order_id", ord.ID.String()), zap.Error(err))
	}
}

func sanitizeReason(r *string) *string {
	if r == nil {
		return nil
	}
	s := []rune(*r)
	if len(s) > maxReasonLen {
		s = s[:maxReasonLen]
	}
	out := string(s)
	return &out
}

// isIncomplete: заказ обработан, но склад требует сверки.
func isIncomplete(err error) bool { return errors.Is(err, ErrCompensationIncomplete) }
