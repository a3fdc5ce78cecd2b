package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nanorand/nanorand"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTxTimeout     = 10 * time.Second
	defaultMaxTxAttempts = 3
	defaultLockTimeout   = 5 * time.Second
	orderListCacheTTL    = 60 * time.Second
	quoteConcurrency     = 4
	maxNumberAttempts    = 5
)

type OrderOptions struct {
	TxTimeout      time.Duration   // на одну попытку транзакции
	MaxTxAttempts  int             // всего попыток при конфликтах и таймаутах
	LockTimeout    time.Duration   // SET LOCAL lock_timeout
	PriceTolerance decimal.Decimal // допустимое расхождение с суммой клиента
	ListCacheTTL   time.Duration   // срок жизни кэша списка заказов
}

type OrderServiceDeps struct {
	Repo    *repository.Repository
	Cache   Cache
	Events  EventBus
	Logger  *zap.Logger
	Options OrderOptions
	Clock   func() time.Time
	// Генератор номера заказа; по умолчанию ORD-XXXXXXXXXX
	NumberGenerator func() (string, error)
}

type orderService struct {
	repo       *repository.Repository
	catalog    CatalogReader
	allocators allocatorSet
	comp       *CompensationService
	lifecycle  *LifecycleManager
	cache      Cache
	events     EventBus
	log        *zap.Logger
	opt        OrderOptions
	now        func() time.Time
	newNumber  func() (string, error)
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cache := deps.Cache
	if cache == nil {
		cache = NoopCache()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	newNumber := deps.NumberGenerator
	if newNumber == nil {
		newNumber = generateOrderNumber
	}

	opt := deps.Options
	if opt.TxTimeout <= 0 {
		opt.TxTimeout = defaultTxTimeout
	}
	if opt.MaxTxAttempts <= 0 {
		opt.MaxTxAttempts = defaultMaxTxAttempts
	}
	if opt.LockTimeout <= 0 {
		opt.LockTimeout = defaultLockTimeout
	}
	if opt.ListCacheTTL <= 0 {
		opt.ListCacheTTL = orderListCacheTTL
	}
	if opt.PriceTolerance.IsZero() {
		opt.PriceTolerance = DefaultPriceTolerance
	}

	weight := NewWeightAllocator()
	weight.now = now
	allocs := []Allocator{NewCountAllocator(), weight}

	comp := NewCompensationService(deps.Repo, log, allocs...)
	comp.now = now
	comp.maxAttempts = opt.MaxTxAttempts
	lifecycle := NewLifecycleManager(deps.Repo, comp, deps.Events, cache, log)
	lifecycle.now = now

	return &orderService{
		repo:       deps.Repo,
		allocators: newAllocatorSet(allocs...),
		comp:       comp,
		lifecycle:  lifecycle,
		cache:      cache,
		events:     deps.Events,
		log:        log,
		opt:        opt,
		now:        now,
		newNumber:  newNumber,
	}
}

func generateOrderNumber() (string, error) {
	rng, err := nanorand.Gen(10)
	if err != nil {
		return "", err
	}
	return "ORD-" + strings.ToUpper(rng), nil
}

// uniqueNumber перегенерирует номер, пока он занят существующим заказом.
func (s *orderService) uniqueNumber(ctx context.Context) (string, error) {
	for i := 0; i < maxNumberAttempts; i++ {
		number, err := s.newNumber()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.Orders.NumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
		s.log.Warn("номер заказа уже занят, генерируем новый", zap.String("number", number))
	}
	return "", fmt.Errorf("no free order number after %d attempts", maxNumberAttempts)
}

func validateLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return ErrEmptyItems
	}
	for _, l := range lines {
		if l.VariantID != nil && l.SizeCategoryID != nil {
			return ErrAmbiguousLine
		}
		if l.IsPerishable() {
			if !l.WeightKg.IsPositive() {
				return ErrWeightInvalid
			}
			if l.Quantity < 0 {
				return ErrQuantityInvalid
			}
			continue
		}
		if l.Quantity <= 0 {
			return ErrQuantityInvalid
		}
	}
	return nil
}

// Ключ блокировки: все транзакции берут строки каталога в одном порядке.
func lockOrder(lines []OrderLine) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	key := func(l OrderLine) string {
		k := l.ProductID.String()
		switch {
		case l.VariantID != nil:
			k += ":" + l.VariantID.String()
		case l.SizeCategoryID != nil:
			k += ":" + l.SizeCategoryID.String()
		}
		return k
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(lines[idx[a]]) < key(lines[idx[b]]) })
	return idx
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	var userID *uuid.UUID
	if uid, ok := UserIDFromContext(ctx); ok {
		userID = &uid
	} else if in.Guest == nil || strings.TrimSpace(in.Guest.Name) == "" || strings.TrimSpace(in.Guest.Phone) == "" {
		return nil, ErrGuestContactRequired
	}

	zone, err := ParseZone(in.Zone)
	if err != nil {
		return nil, err
	}
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	orderID := uuid.New()
	attempt := 0
	op := func() error {
		attempt++
		number, err := s.uniqueNumber(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		txCtx, cancel := context.WithTimeout(ctx, s.opt.TxTimeout)
		defer cancel()

		err = s.repo.WithTx(txCtx, func(tx *repository.Repository) error {
			return s.createInTx(txCtx, tx, orderID, number, userID, zone, in)
		})
		if err == nil {
			return nil
		}
		if repository.IsTransient(err) || errors.Is(err, ErrTransient) {
			s.log.Warn("конфликт транзакции при создании заказа, повтор",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if errors.Is(err, ErrTransient) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.opt.MaxTxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if !errors.Is(err, ErrTransient) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, err
	}

	order, err := s.repo.Orders.GetByID(ctx, orderID)
	if err != nil || order == nil {
		// заказ закоммичен, но вернуть его не можем: отменяем и возвращаем резервы
		s.log.Error("не удалось загрузить созданный заказ, отмена",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		if _, cerr := s.lifecycle.Transition(ctx, orderID, models.OrderStatusCancelled); cerr != nil {
			s.log.Error("не удалось отменить незагруженный заказ",
				zap.String("order_id", orderID.String()),
				zap.Bool("compensation_incomplete", isIncomplete(cerr)),
				zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: order %s could not be loaded after commit", ErrTransient, orderID)
	}

	s.afterCreate(ctx, order)
	return order, nil
}

func (s *orderService) createInTx(ctx context.Context, tx *repository.Repository, orderID uuid.UUID, number string, userID *uuid.UUID, zone models.ShippingZone, in CreateOrderInput) error {
	if err := tx.SetLocalLockTimeout(ctx, s.opt.LockTimeout); err != nil {
		return err
	}

	var (
		items         = make([]models.OrderItem, len(in.Lines))
		reservations  = make([]Reservation, len(in.Lines))
		total         = decimal.Zero
		weight        = decimal.Zero
		hasStandard   bool
		hasPerishable bool
		now           = s.now().UTC()
	)

	for _, i := range lockOrder(in.Lines) {
		line := in.Lines[i]

		snap, err := s.catalog.Snapshot(ctx, tx, line, true)
		if err != nil {
			return err
		}

		alloc, err := s.allocators.get(snap.Strategy)
		if err != nil {
			return err
		}

		label := snap.ProductName
		if snap.Label != "" {
			label += " / " + snap.Label
		}
		res, err := alloc.Allocate(ctx, tx, AllocationRequest{
			OrderID:   orderID,
			Target:    snap.Target,
			TargetID:  snap.TargetID,
			ProductID: snap.ProductID,
			Label:     label,
			Quantity:  line.Quantity,
			WeightKg:  line.WeightKg,
		})
		if err != nil {
			return err
		}
		reservations[i] = res

		lt := lineTotal(snap, line)
		if line.ClientUnitPrice.Valid && !line.ClientUnitPrice.Decimal.Equal(snap.UnitPrice) {
			s.log.Info("цена клиента отличается от текущей",
				zap.String("product_id", snap.ProductID.String()),
				zap.String("client", line.ClientUnitPrice.Decimal.String()),
				zap.String("server", snap.UnitPrice.String()))
		}

		item := models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			Position:       i,
			Kind:           snap.Kind,
			ProductID:      snap.ProductID,
			ProductName:    snap.ProductName,
			VariantID:      snap.VariantID,
			SizeCategoryID: snap.SizeCategoryID,
			VariantLabel:   snap.Label,
			Quantity:       line.Quantity,
			UnitPrice:      snap.UnitPrice,
			LineTotal:      lt,
			CreatedAt:      now,
		}

		if snap.Kind == models.ItemKindPerishable {
			hasPerishable = true
			item.RequestedWeightKg = line.WeightKg
			item.AllocatedWeightKg = line.WeightKg
			if res.Units != nil {
				item.AllocatedWeightKg = res.Units.WeightKg
				item.Quantity = int32(len(res.Units.UnitIDs))
			}
		} else {
			hasStandard = true
			weight = weight.Add(snap.WeightKg.Mul(decimal.NewFromInt32(line.Quantity)))
		}

		items[i] = item
		total = total.Add(lt)
	}

	if err := checkTotal(in.ClientTotal, total, s.opt.PriceTolerance); err != nil {
		return err
	}

	quote, err := CalculateShipping(zone, weight, hasStandard, hasPerishable)
	if err != nil {
		return err
	}

	order := &models.Order{
		ID:                orderID,
		Number:            number,
		UserID:            userID,
		ShippingAddress:   in.ShippingAddress,
		PaymentMethod:     models.PaymentMethodCOD,
		Zone:              zone,
		ShippingWeightKg:  quote.WeightKg,
		ShippingFee:       quote.Fee,
		ShippingBreakdown: quote.Breakdown,
		TotalPrice:        total,
		TotalAmount:       total.Add(quote.Fee),
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if userID == nil {
		order.Guest = *in.Guest
	}

	if err := tx.Orders.Create(ctx, order); err != nil {
		return err
	}
	if err := tx.OrderItems.BulkCreate(ctx, items); err != nil {
		return err
	}

	ledger := make([]models.Allocation, 0, len(items))
	for i, res := range reservations {
		ledger = append(ledger, res.toAllocation(orderID, items[i].ID))
	}
	return tx.Allocations.BulkCreate(ctx, ledger)
}

// Только после коммита: инвалидация кэша и событие. Ошибки не фатальны.
func (s *orderService) afterCreate(ctx context.Context, order *models.Order) {
	keys := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		keys = append(keys, productCacheKey(it.ProductID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("не удалось инвалидировать кэш товаров", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
	if order.UserID != nil {
		if err := s.cache.DelPattern(ctx, orderListCachePattern(*order.UserID)); err != nil {
			s.log.Warn("не удалось инвалидировать кэш заказов", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, newOrderCreatedEvent(order)); err != nil {
			s.log.Warn("не удалось отправить событие создания заказа", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	s.log.Info("заказ создан",
		zap.String("order_id", order.ID.String()),
		zap.String("number", order.Number),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))
}

func (s *orderService) GetShippingQuote(ctx context.Context, in QuoteInput) (*ShippingQuote, error) {
	zone, err := ParseZone(in.Zone)
	if err != nil {
		return nil, err
	}
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	snaps := make([]*LineSnapshot, len(in.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteConcurrency)
	for i, line := range in.Lines {
		g.Go(func() error {
			snap, err := s.catalog.Snapshot(gctx, s.repo, line, false)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weight := decimal.Zero
	var hasStandard, hasPerishable bool
	for i, snap := range snaps {
		if snap.Kind == models.ItemKindPerishable {
			hasPerishable = true
			continue
		}
		hasStandard = true
		weight = weight.Add(snap.WeightKg.Mul(decimal.NewFromInt32(in.Lines[i].Quantity)))
	}

	q, err := CalculateShipping(zone, weight, hasStandard, hasPerishable)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	var ord *models.Order
	if role == RoleAdmin {
		ord, err = s.repo.Orders.GetByID(ctx, id)
	} else {
		ord, err = s.repo.Orders.GetByIDForUser(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

type cachedOrderList struct {
	Orders []*models.Order `json:"orders"`
	Total  int64           `json:"total"`
}

func (s *orderService) ListOrders(ctx context.Context, f ListFilter) ([]*models.Order, int64, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, 0, err
	}

	// не-админ видит только свои заказы
	if role != RoleAdmin {
		f.UserID = &userID
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var key string
	if f.UserID != nil {
		key = orderListCacheKey(*f.UserID, f)
		var cached cachedOrderList
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.log.Warn("ошибка чтения кэша заказов", zap.String("key", key), zap.Error(err))
		} else if ok {
			return cached.Orders, cached.Total, nil
		}
	}

	list, total, err := s.repo.Orders.List(ctx, repository.OrderListFilter{
		UserID: f.UserID,
		Status: f.Status,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, cachedOrderList{Orders: list, Total: total}, s.opt.ListCacheTTL); err != nil {
			s.log.Warn("ошибка записи кэша заказов", zap.String("key", key), zap.Error(err))
		}
	}
	return list, total, nil
}

func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	return s.lifecycle.Cancel(ctx, id, reason)
}

func (s *orderService) TransitionOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.lifecycle.Transition(ctx, id, status)
}

func (s *orderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.lifecycle.Delete(ctx, id)
}
