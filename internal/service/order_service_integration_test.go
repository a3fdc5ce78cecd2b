package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fulfillment-service/internal/migrate"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/service"
	"fulfillment-service/pkg/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingBus struct {
	mu        sync.Mutex
	created   []service.OrderCreatedEvent
	cancelled []service.OrderCancelledEvent
	changed   []service.OrderStatusChangedEvent
}

func (b *recordingBus) PublishOrderCreated(_ context.Context, e service.OrderCreatedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, e)
	return nil
}

func (b *recordingBus) PublishOrderCancelled(_ context.Context, e service.OrderCancelledEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, e)
	return nil
}

func (b *recordingBus) PublishOrderStatusChanged(_ context.Context, e service.OrderStatusChangedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changed = append(b.changed, e)
	return nil
}

// recordingCache запоминает инвалидации; поведение можно подменить через func-поля.
type recordingCache struct {
	mu       sync.Mutex
	deleted  []string
	patterns []string
	ttls     []time.Duration

	DelFunc        func(keys ...string) error
	DelPatternFunc func(pattern string) error
}

func (c *recordingCache) Get(context.Context, string, any) (bool, error) { return false, nil }

func (c *recordingCache) Set(_ context.Context, _ string, _ any, ttl time.Duration) error {
	c.mu.Lock()
	c.ttls = append(c.ttls, ttl)
	c.mu.Unlock()
	return nil
}

func (c *recordingCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	c.deleted = append(c.deleted, keys...)
	c.mu.Unlock()
	if c.DelFunc != nil {
		return c.DelFunc(keys...)
	}
	return nil
}

func (c *recordingCache) DelPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	c.patterns = append(c.patterns, pattern)
	c.mu.Unlock()
	if c.DelPatternFunc != nil {
		return c.DelPatternFunc(pattern)
	}
	return nil
}

func (c *recordingCache) calls() ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...), append([]string(nil), c.patterns...)
}

type fixture struct {
	repo  *repository.Repository
	svc   service.OrderService
	bus   *recordingBus
	cache *recordingCache
}

func setup(t *testing.T) *fixture {
	return setupWith(t, service.OrderOptions{})
}

func setupWith(t *testing.T, opt service.OrderOptions) *fixture {
	t.Helper()
	return setupDeps(t, func(o *service.OrderServiceDeps) { o.Options = opt })
}

func setupDeps(t *testing.T, tune func(*service.OrderServiceDeps)) *fixture {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.New(db)
	bus := &recordingBus{}
	cache := &recordingCache{}
	deps := service.OrderServiceDeps{
		Repo:   repo,
		Cache:  cache,
		Events: bus,
		Logger: zap.NewNop(),
	}
	if tune != nil {
		tune(&deps)
	}
	svc := service.NewOrderService(deps)
	return &fixture{repo: repo, svc: svc, bus: bus, cache: cache}
}

func buyer(uid uuid.UUID) context.Context {
	return service.WithRole(service.WithUserID(context.Background(), uid), service.RoleCustomer)
}

func admin() context.Context {
	return service.WithRole(service.WithUserID(context.Background(), uuid.New()), service.RoleAdmin)
}

func (f *fixture) seedVariantProduct(t *testing.T, price string, stock int32) (*models.Product, *models.Variant) {
	t.Helper()
	return f.seedVariantProductWithID(t, uuid.Nil, price, stock)
}

// seedVariantProductWithID задаёт id товара явно: порядок блокировок строк заказа зависит от него.
func (f *fixture) seedVariantProductWithID(t *testing.T, id uuid.UUID, price string, stock int32) (*models.Product, *models.Variant) {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{
		ID:          id,
		Name:        "T-shirt " + uuid.NewString()[:6],
		Price:       d(price),
		WeightKg:    d("0.4"),
		HasVariants: true,
		Variants: []models.Variant{
			{Label: "M", Price: d(price), Stock: stock, IsDefault: true},
		},
	}
	require.NoError(t, f.repo.Products.Create(ctx, p))
	require.NoError(t, f.repo.Products.RecomputeAggregateStock(ctx, p.ID))
	return p, &p.Variants[0]
}

func (f *fixture) seedUnitFish(t *testing.T, pricePerKg string, weights ...string) (*models.PerishableProduct, *models.SizeCategory, []models.InventoryUnit) {
	t.Helper()
	ctx := context.Background()
	p := &models.PerishableProduct{Name: "Hilsa", InventoryMode: models.InventoryModeUnit}
	require.NoError(t, f.repo.Perishables.Create(ctx, p))
	c := &models.SizeCategory{PerishableProductID: p.ID, Label: "1-1.5kg", PricePerKg: d(pricePerKg)}
	require.NoError(t, f.repo.Perishables.CreateSizeCategory(ctx, c))

	units := make([]models.InventoryUnit, 0, len(weights))
	for _, w := range weights {
		units = append(units, models.InventoryUnit{
			PerishableProductID: p.ID,
			SizeCategoryID:      c.ID,
			ActualWeightKg:      d(w),
			Status:              models.UnitStatusAvailable,
		})
	}
	require.NoError(t, f.repo.Units.BulkCreate(ctx, units))
	require.NoError(t, f.repo.Units.ResyncCategoryStock(ctx, c.ID))
	return p, c, units
}

func (f *fixture) variant(t *testing.T, p *models.Product, v *models.Variant) *models.Variant {
	t.Helper()
	got, err := f.repo.Products.GetVariant(context.Background(), p.ID, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func orderInput(total string, lines ...service.OrderLine) service.CreateOrderInput {
	return service.CreateOrderInput{
		Lines: lines,
		ShippingAddress: models.ShippingAddress{
			FullName: "Buyer", Phone: "+8801700000000", Line1: "House 1", City: "Dhaka",
		},
		Zone:        string(models.ZoneInsideHub),
		ClientTotal: d(total),
	}
}

func TestCreateOrder_VariantSellsOutThenInsufficient(t *testing.T) {
	f := setup(t)
	ctx := buyer(uuid.New())
	p, v := f.seedVariantProduct(t, "100", 3)

	ord, err := f.svc.CreateOrder(ctx, orderInput("300", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, ord.Status)
	assert.Equal(t, models.PaymentStatusPending, ord.PaymentStatus)
	assert.True(t, ord.TotalPrice.Equal(d("300")))
	// 3 * 0.4 = 1.2 кг -> 80 внутри хаба
	assert.True(t, ord.ShippingFee.Equal(d("80")), "fee %s", ord.ShippingFee)
	assert.True(t, ord.TotalAmount.Equal(d("380")))
	require.Len(t, ord.Items, 1)
	require.Len(t, ord.Allocations, 1)

	got := f.variant(t, p, v)
	assert.Equal(t, int32(0), got.Stock)
	assert.Equal(t, int32(3), got.Sold)
	assert.Equal(t, models.StockStatusOutOfStock, got.Status)

	prod, err := f.repo.Products.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), prod.Stock)

	_, err = f.svc.CreateOrder(ctx, orderInput("100", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	var se *service.StockError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Available.IsZero())

	assert.Len(t, f.bus.created, 1)
}

func TestCreateOrder_PriceMismatchAndTolerance(t *testing.T) {
	f := setup(t)
	ctx := buyer(uuid.New())
	p, v := f.seedVariantProduct(t, "499", 2)

	_, err := f.svc.CreateOrder(ctx, orderInput("500.00", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.ErrorIs(t, err, service.ErrPriceMismatch)
	assert.Equal(t, int32(2), f.variant(t, p, v).Stock, "mismatch must not reserve stock")

	ord, err := f.svc.CreateOrder(ctx, orderInput("499.005", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.True(t, ord.TotalPrice.Equal(d("499")))
	assert.Equal(t, int32(1), f.variant(t, p, v).Stock)
}

func TestCreateOrder_AtomicAcrossLines(t *testing.T) {
	f := setup(t)
	ctx := buyer(uuid.New())
	// первая по порядку блокировок строка проходит, вторая падает на остатке
	p1, v1 := f.seedVariantProductWithID(t, uuid.MustParse("00000000-0000-0000-0000-000000000001"), "10", 5)
	p2, v2 := f.seedVariantProductWithID(t, uuid.MustParse("00000000-0000-0000-0000-000000000002"), "20", 1)

	_, err := f.svc.CreateOrder(ctx, orderInput("60",
		service.OrderLine{ProductID: p1.ID, VariantID: &v1.ID, Quantity: 2},
		service.OrderLine{ProductID: p2.ID, VariantID: &v2.ID, Quantity: 2},
	))
	require.ErrorIs(t, err, service.ErrInsufficientStock)

	assert.Equal(t, int32(5), f.variant(t, p1, v1).Stock)
	assert.Equal(t, int32(1), f.variant(t, p2, v2).Stock)
	assert.Empty(t, f.bus.created)
}

func TestCreateOrder_WeightAllocationSelectsSmallestFirst(t *testing.T) {
	f := setup(t)
	ctx := buyer(uuid.New())
	p, c, units := f.seedUnitFish(t, "500", "4.0", "1.3", "1.2", "1.3")

	ord, err := f.svc.CreateOrder(ctx, orderInput("2500", service.OrderLine{
		ProductID: p.ID, SizeCategoryID: &c.ID, WeightKg: d("5.0"),
	}))
	require.NoError(t, err)
	require.Len(t, ord.Items, 1)
	assert.Equal(t, int32(4), ord.Items[0].Quantity)
	assert.True(t, ord.Items[0].AllocatedWeightKg.Equal(d("7.8")))
	assert.True(t, ord.ShippingFee.Equal(d("150")), "perishable flat fee, got %s", ord.ShippingFee)

	ids := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	got, err := f.repo.Units.GetByIDs(context.Background(), ids)
	require.NoError(t, err)
	for _, u := range got {
		assert.Equal(t, models.UnitStatusReserved, u.Status)
		require.NotNil(t, u.ReservedOrderID)
		assert.Equal(t, ord.ID, *u.ReservedOrderID)
	}

	cat, err := f.repo.Perishables.GetSizeCategory(context.Background(), p.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), cat.Stock)
	assert.Equal(t, models.StockStatusOutOfStock, cat.Status)
}

func TestCreateOrder_WeightAllocationInsufficient(t *testing.T) {
	f := setup(t)
	ctx := buyer(uuid.New())
	p, c, _ := f.seedUnitFish(t, "500", "1.0", "1.0")

	_, err := f.svc.CreateOrder(ctx, orderInput("1500", service.OrderLine{
		ProductID: p.ID, SizeCategoryID: &c.ID, WeightKg: d("3.0"),
	}))
	require.ErrorIs(t, err, service.ErrInsufficientStock)
	var se *service.StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "kg", se.Unit)
	assert.True(t, se.Available.Equal(d("2")))
}

func TestCancelOrder_RestoresStockOnce(t *testing.T) {
	f := setup(t)
	uid := uuid.New()
	ctx := buyer(uid)
	p, v := f.seedVariantProduct(t, "50", 4)
	fp, c, units := f.seedUnitFish(t, "300", "1.0", "2.0")

	ord, err := f.svc.CreateOrder(ctx, orderInput("1100",
		service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 4},
		service.OrderLine{ProductID: fp.ID, SizeCategoryID: &c.ID, WeightKg: d("3.0")},
	))
	require.NoError(t, err)
	// 4 * 0.4 = 1.6 кг -> 80, плюс фиксированные 150 за скоропортящееся
	assert.True(t, ord.ShippingFee.Equal(d("230")), "fee %s", ord.ShippingFee)

	reason := "changed my mind"
	cancelled, err := f.svc.CancelOrder(ctx, ord.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentStatusCancelled, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelReason)
	for _, a := range cancelled.Allocations {
		assert.Equal(t, models.AllocationReleased, a.Status)
	}

	got := f.variant(t, p, v)
	assert.Equal(t, int32(4), got.Stock)
	assert.Equal(t, int32(0), got.Sold)
	assert.Equal(t, models.StockStatusActive, got.Status)

	// повторная отмена не возвращает склад второй раз
	_, err = f.svc.CancelOrder(ctx, ord.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(4), f.variant(t, p, v).Stock)

	list, err := f.repo.Units.GetByIDs(context.Background(), []uuid.UUID{units[0].ID, units[1].ID})
	require.NoError(t, err)
	for _, u := range list {
		assert.Equal(t, models.UnitStatusAvailable, u.Status)
		assert.Nil(t, u.ReservedOrderID)
	}
	cat, err := f.repo.Perishables.GetSizeCategory(context.Background(), fp.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), cat.Stock)

	assert.Len(t, f.bus.cancelled, 1)
}

func TestCancelOrder_OtherBuyerForbidden(t *testing.T) {
	f := setup(t)
	p, v := f.seedVariantProduct(t, "10", 1)

	ord, err := f.svc.CreateOrder(buyer(uuid.New()), orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(buyer(uuid.New()), ord.ID, nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.CancelOrder(buyer(uuid.New()), uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestLifecycle_DeliveredFinalizesAndBlocksCancel(t *testing.T) {
	f := setup(t)
	uid := uuid.New()
	fp, c, units := f.seedUnitFish(t, "400", "1.1", "0.9")

	ord, err := f.svc.CreateOrder(buyer(uid), orderInput("800", service.OrderLine{
		ProductID: fp.ID, SizeCategoryID: &c.ID, WeightKg: d("2.0"),
	}))
	require.NoError(t, err)

	_, err = f.svc.TransitionOrderStatus(buyer(uid), ord.ID, models.OrderStatusConfirmed)
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.TransitionOrderStatus(admin(), ord.ID, models.OrderStatusShipped)
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	for _, st := range []models.OrderStatus{
		models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered,
	} {
		ord, err = f.svc.TransitionOrderStatus(admin(), ord.ID, st)
		require.NoError(t, err, "transition to %s", st)
	}
	assert.Equal(t, models.PaymentStatusCompleted, ord.PaymentStatus)
	assert.NotNil(t, ord.DeliveredAt)

	list, err := f.repo.Units.GetByIDs(context.Background(), []uuid.UUID{units[0].ID, units[1].ID})
	require.NoError(t, err)
	for _, u := range list {
		assert.Equal(t, models.UnitStatusSold, u.Status)
	}

	_, err = f.svc.CancelOrder(buyer(uid), ord.ID, nil)
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	after, err := f.repo.Orders.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, after.Status)
	list, err = f.repo.Units.GetByIDs(context.Background(), []uuid.UUID{units[0].ID, units[1].ID})
	require.NoError(t, err)
	for _, u := range list {
		assert.Equal(t, models.UnitStatusSold, u.Status)
	}
}

func TestCreateOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := setup(t)
	p, v := f.seedVariantProduct(t, "25", 5)

	const buyers = 12
	var (
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)

	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := f.svc.CreateOrder(buyer(uuid.New()), orderInput("25", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrInsufficientStock):
				outOfStock++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, outOfStock)
	got := f.variant(t, p, v)
	assert.Equal(t, int32(0), got.Stock)
	assert.Equal(t, int32(5), got.Sold)
}

func TestCreateOrder_GuestCheckout(t *testing.T) {
	f := setup(t)
	p, v := f.seedVariantProduct(t, "10", 2)

	_, err := f.svc.CreateOrder(context.Background(), orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.ErrorIs(t, err, service.ErrGuestContactRequired)

	in := orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1})
	in.Guest = &models.GuestContact{Name: "Guest", Phone: "+8801800000000"}
	in.Zone = "somewhere"
	_, err = f.svc.CreateOrder(context.Background(), in)
	require.ErrorIs(t, err, service.ErrInvalidZone)

	in.Zone = string(models.ZoneOutsideHub)
	ord, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, ord.IsGuest())
	assert.Equal(t, "Guest", ord.Guest.Name)
	assert.True(t, ord.ShippingFee.Equal(d("110")))
}

func TestDeleteOrder_PendingOnly(t *testing.T) {
	f := setup(t)
	uid := uuid.New()
	p, v := f.seedVariantProduct(t, "10", 3)

	ord, err := f.svc.CreateOrder(buyer(uid), orderInput("20", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 2}))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteOrder(buyer(uid), ord.ID))

	assert.Equal(t, int32(3), f.variant(t, p, v).Stock)
	gone, err := f.repo.Orders.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	ord2, err := f.svc.CreateOrder(buyer(uid), orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.TransitionOrderStatus(admin(), ord2.ID, models.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteOrder(buyer(uid), ord2.ID), service.ErrInvalidTransition)
}

func TestGetShippingQuote_Mixed(t *testing.T) {
	f := setup(t)
	p, v := f.seedVariantProduct(t, "10", 10)
	fp, c, _ := f.seedUnitFish(t, "300", "1.0")

	q, err := f.svc.GetShippingQuote(context.Background(), service.QuoteInput{
		Zone: string(models.ZoneOutsideHub),
		Lines: []service.OrderLine{
			{ProductID: p.ID, VariantID: &v.ID, Quantity: 6}, // 2.4 кг
			{ProductID: fp.ID, SizeCategoryID: &c.ID, WeightKg: d("1")},
		},
	})
	require.NoError(t, err)
	assert.True(t, q.WeightKg.Equal(d("2.4")))
	assert.True(t, q.Fee.Equal(d("450")), "fee %s", q.Fee)
	assert.Len(t, q.Breakdown, 2)

	_, err = f.svc.GetShippingQuote(context.Background(), service.QuoteInput{
		Zone:  string(models.ZoneOutsideHub),
		Lines: []service.OrderLine{{ProductID: uuid.New(), Quantity: 1}},
	})
	assert.ErrorIs(t, err, service.ErrNotFound)

	// котировка не трогает склад
	assert.Equal(t, int32(10), f.variant(t, p, v).Stock)
}

func TestCancelOrder_DriftIsReportedButStatusAdvances(t *testing.T) {
	f := setup(t)
	uid := uuid.New()
	fp, c, units := f.seedUnitFish(t, "100", "1.0", "1.0")

	ord, err := f.svc.CreateOrder(buyer(uid), orderInput("200", service.OrderLine{
		ProductID: fp.ID, SizeCategoryID: &c.ID, WeightKg: d("2.0"),
	}))
	require.NoError(t, err)

	// одна штука испортилась на складе
	require.NoError(t, f.repo.DB.Model(&models.InventoryUnit{}).
		Where("id = ?", units[0].ID).
		Update("status", models.UnitStatusDamaged).Error)

	got, err := f.svc.CancelOrder(buyer(uid), ord.ID, nil)
	require.ErrorIs(t, err, service.ErrCompensationIncomplete)
	require.NotNil(t, got)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	list, err := f.repo.Units.GetByIDs(context.Background(), []uuid.UUID{units[0].ID, units[1].ID})
	require.NoError(t, err)
	statuses := map[uuid.UUID]models.UnitStatus{}
	for _, u := range list {
		statuses[u.ID] = u.Status
	}
	assert.Equal(t, models.UnitStatusDamaged, statuses[units[0].ID])
	assert.Equal(t, models.UnitStatusAvailable, statuses[units[1].ID])

	// журнал закрыт, повторная отмена уже ничего не делает
	_, err = f.svc.CancelOrder(buyer(uid), ord.ID, nil)
	assert.NoError(t, err)
}

func TestCreateOrder_InvalidatesCacheOnlyAfterCommit(t *testing.T) {
	f := setup(t)
	uid := uuid.New()
	ctx := buyer(uid)
	p, v := f.seedVariantProduct(t, "100", 5)

	_, err := f.svc.CreateOrder(ctx, orderInput("500", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.ErrorIs(t, err, service.ErrPriceMismatch)
	deleted, patterns := f.cache.calls()
	assert.Empty(t, deleted)
	assert.Empty(t, patterns)

	// ошибка кэша после коммита не ломает заказ
	f.cache.DelFunc = func(...string) error { return errors.New("redis down") }
	ord, err := f.svc.CreateOrder(ctx, orderInput("100", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.NoError(t, err)
	require.NotNil(t, ord)

	deleted, patterns = f.cache.calls()
	assert.Equal(t, []string{"product:" + p.ID.String()}, deleted)
	assert.Equal(t, []string{"orders:user:" + uid.String() + ":*"}, patterns)
}

func TestCreateOrder_LockTimeoutSurfacesTransient(t *testing.T) {
	f := setupWith(t, service.OrderOptions{
		MaxTxAttempts: 2,
		LockTimeout:   200 * time.Millisecond,
		TxTimeout:     5 * time.Second,
	})
	p, v := f.seedVariantProduct(t, "100", 5)

	// чужая транзакция держит строку товара
	holder := f.repo.DB.Begin()
	require.NoError(t, holder.Error)
	defer holder.Rollback()
	require.NoError(t, holder.Exec("SELECT id FROM products WHERE id = ? FOR UPDATE", p.ID).Error)

	_, err := f.svc.CreateOrder(buyer(uuid.New()), orderInput("100", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.ErrorIs(t, err, service.ErrTransient)
	assert.Equal(t, "transient", service.Kind(err))

	require.NoError(t, holder.Rollback().Error)
	assert.Equal(t, int32(5), f.variant(t, p, v).Stock)
	assert.Empty(t, f.bus.created)
	deleted, _ := f.cache.calls()
	assert.Empty(t, deleted)
}

func TestCancelOrder_ConcurrentWithCreateReturnsAllStock(t *testing.T) {
	f := setup(t)
	p, v := f.seedVariantProduct(t, "10", 40)

	const n = 10
	orders := make([]*models.Order, 0, n)
	for i := 0; i < n; i++ {
		ord, err := f.svc.CreateOrder(buyer(uuid.New()), orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
		require.NoError(t, err)
		orders = append(orders, ord)
	}

	// отмены идут вперемешку с новыми заказами на тот же товар
	var g errgroup.Group
	for _, ord := range orders {
		ord := ord
		g.Go(func() error {
			_, err := f.svc.TransitionOrderStatus(admin(), ord.ID, models.OrderStatusCancelled)
			return err
		})
		g.Go(func() error {
			_, err := f.svc.CreateOrder(buyer(uuid.New()), orderInput("10", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, ord := range orders {
		rows, err := f.repo.Allocations.ListByOrder(context.Background(), ord.ID)
		require.NoError(t, err)
		for _, a := range rows {
			assert.Equal(t, models.AllocationReleased, a.Status)
		}
	}
	// 40 - 10 созданных и отменённых + 10 новых
	got := f.variant(t, p, v)
	assert.Equal(t, int32(30), got.Stock)
	prod, err := f.repo.Products.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Stock, prod.Stock)
}

func TestCreateOrder_RegeneratesTakenNumber(t *testing.T) {
	var (
		mu    sync.Mutex
		queue = []string{"ORD-DUP0000001", "ORD-DUP0000001", "ORD-FRESH00001"}
	)
	f := setupDeps(t, func(o *service.OrderServiceDeps) {
		o.NumberGenerator = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			n := queue[0]
			if len(queue) > 1 {
				queue = queue[1:]
			}
			return n, nil
		}
	})
	ctx := buyer(uuid.New())
	p, v := f.seedVariantProduct(t, "100", 5)
	line := service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}

	first, err := f.svc.CreateOrder(ctx, orderInput("100", line))
	require.NoError(t, err)
	assert.Equal(t, "ORD-DUP0000001", first.Number)

	// повтор занятого номера не превращается в ошибку уникального индекса
	second, err := f.svc.CreateOrder(ctx, orderInput("100", line))
	require.NoError(t, err)
	assert.Equal(t, "ORD-FRESH00001", second.Number)
	assert.Equal(t, int32(3), f.variant(t, p, v).Stock)
}

func TestCreateOrder_NumbersExhausted(t *testing.T) {
	f := setupDeps(t, func(o *service.OrderServiceDeps) {
		o.NumberGenerator = func() (string, error) { return "ORD-SAME000001", nil }
	})
	ctx := buyer(uuid.New())
	p, v := f.seedVariantProduct(t, "100", 5)
	line := service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}

	_, err := f.svc.CreateOrder(ctx, orderInput("100", line))
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, orderInput("100", line))
	require.Error(t, err)
	assert.Equal(t, int32(4), f.variant(t, p, v).Stock)
}

func TestListOrders_UsesConfiguredCacheTTL(t *testing.T) {
	f := setupWith(t, service.OrderOptions{ListCacheTTL: 15 * time.Minute})
	ctx := buyer(uuid.New())
	p, v := f.seedVariantProduct(t, "100", 5)
	_, err := f.svc.CreateOrder(ctx, orderInput("100", service.OrderLine{ProductID: p.ID, VariantID: &v.ID, Quantity: 1}))
	require.NoError(t, err)

	list, total, err := f.svc.ListOrders(ctx, service.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int64(1), total)

	f.cache.mu.Lock()
	defer f.cache.mu.Unlock()
	assert.Equal(t, []time.Duration{15 * time.Minute}, f.cache.ttls)
}

func TestListOrders_DefaultCacheTTL(t *testing.T) {
	f := setup(t)
	_, _, err := f.svc.ListOrders(buyer(uuid.New()), service.ListFilter{})
	require.NoError(t, err)

	f.cache.mu.Lock()
	defer f.cache.mu.Unlock()
	assert.Equal(t, []time.Duration{time.Minute}, f.cache.ttls)
}
