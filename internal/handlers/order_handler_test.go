package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulfillment-service/internal/dto"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockOrderService struct {
	CreateFunc     func(ctx context.Context, in service.CreateOrderInput) (*models.Order, error)
	QuoteFunc      func(ctx context.Context, in service.QuoteInput) (*service.ShippingQuote, error)
	GetFunc        func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListFunc       func(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error)
	CancelFunc     func(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error)
	TransitionFunc func(ctx context.Context, id uuid.UUID, st models.OrderStatus) (*models.Order, error)
	DeleteFunc     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockOrderService) CreateOrder(ctx context.Context, in service.CreateOrderInput) (*models.Order, error) {
	return m.CreateFunc(ctx, in)
}
func (m *mockOrderService) GetShippingQuote(ctx context.Context, in service.QuoteInput) (*service.ShippingQuote, error) {
	return m.QuoteFunc(ctx, in)
}
func (m *mockOrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return m.GetFunc(ctx, id)
}
func (m *mockOrderService) ListOrders(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error) {
	return m.ListFunc(ctx, f)
}
func (m *mockOrderService) CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	return m.CancelFunc(ctx, id, reason)
}
func (m *mockOrderService) TransitionOrderStatus(ctx context.Context, id uuid.UUID, st models.OrderStatus) (*models.Order, error) {
	return m.TransitionFunc(ctx, id, st)
}
func (m *mockOrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return m.DeleteFunc(ctx, id)
}

func newOrderRouter(svc service.OrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOrderHandler(svc, zap.NewNop())
	r := gin.New()
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders", h.ListOrders)
	r.POST("/orders/:id/cancel", h.CancelOrder)
	r.PATCH("/orders/:id/status", h.UpdateStatus)
	r.DELETE("/orders/:id", h.DeleteOrder)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validCreateBody() map[string]any {
	return map[string]any{
		"lines": []map[string]any{{"product_id": uuid.NewString(), "quantity": 2}},
		"shipping_address": map[string]any{
			"full_name": "Rahim", "phone": "+8801700000000", "line1": "Road 5", "city": "Dhaka",
		},
		"zone":         "inside_hub",
		"client_total": "500.00",
	}
}

func TestCreateOrder_Success(t *testing.T) {
	svc := &mockOrderService{
		CreateFunc: func(_ context.Context, in service.CreateOrderInput) (*models.Order, error) {
			require.Len(t, in.Lines, 1)
			assert.Equal(t, int32(2), in.Lines[0].Quantity)
			assert.True(t, in.ClientTotal.Equal(decimal.NewFromInt(500)))
			assert.Equal(t, "inside_hub", in.Zone)
			return &models.Order{ID: uuid.New(), Number: "ORD-1234", Status: models.OrderStatusPending}, nil
		},
	}
	w := doJSON(newOrderRouter(svc), http.MethodPost, "/orders", validCreateBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ORD-1234", resp.Number)
	assert.Equal(t, "pending", resp.Status)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	svc := &mockOrderService{CreateFunc: func(context.Context, service.CreateOrderInput) (*models.Order, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	w := doJSON(newOrderRouter(svc), http.MethodPost, "/orders", map[string]any{"zone": "inside_hub"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"stock", &service.StockError{Target: "variant red", Requested: decimal.NewFromInt(3), Available: decimal.NewFromInt(1), Unit: "pcs"}, http.StatusConflict, "insufficient_stock"},
		{"price", &service.PriceMismatchError{Client: decimal.NewFromInt(500), Server: decimal.NewFromInt(499)}, http.StatusConflict, "price_mismatch"},
		{"zone", service.ErrInvalidZone, http.StatusUnprocessableEntity, "invalid_zone"},
		{"inactive", service.ErrInactive, http.StatusUnprocessableEntity, "inactive"},
		{"not found", service.ErrProductNotFound, http.StatusNotFound, "not_found"},
		{"guest", service.ErrGuestContactRequired, http.StatusBadRequest, "validation"},
		{"transient", service.ErrTransient, http.StatusServiceUnavailable, "transient"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockOrderService{CreateFunc: func(context.Context, service.CreateOrderInput) (*models.Order, error) {
				return nil, tc.err
			}}
			w := doJSON(newOrderRouter(svc), http.MethodPost, "/orders", validCreateBody())
			assert.Equal(t, tc.status, w.Code)

			var body dto.BaseError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			if tc.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestCancelOrder_CompensationIncompleteIsWarning(t *testing.T) {
	id := uuid.New()
	svc := &mockOrderService{CancelFunc: func(_ context.Context, got uuid.UUID, reason *string) (*models.Order, error) {
		assert.Equal(t, id, got)
		require.NotNil(t, reason)
		assert.Equal(t, "changed mind", *reason)
		return &models.Order{ID: id, Status: models.OrderStatusCancelled}, service.ErrCompensationIncomplete
	}}
	w := doJSON(newOrderRouter(svc), http.MethodPost, "/orders/"+id.String()+"/cancel", map[string]any{"reason": "changed mind"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, []string{"compensation_incomplete"}, resp.Warnings)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	svc := &mockOrderService{TransitionFunc: func(_ context.Context, _ uuid.UUID, st models.OrderStatus) (*models.Order, error) {
		return nil, &service.TransitionError{From: models.OrderStatusShipped, To: st}
	}}
	w := doJSON(newOrderRouter(svc), http.MethodPatch, "/orders/"+uuid.NewString()+"/status", map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListOrders_ParsesQuery(t *testing.T) {
	svc := &mockOrderService{ListFunc: func(_ context.Context, f service.ListFilter) ([]*models.Order, int64, error) {
		assert.Equal(t, 100, f.Limit)
		assert.Equal(t, 5, f.Offset)
		require.NotNil(t, f.Status)
		assert.Equal(t, models.OrderStatusPending, *f.Status)
		return []*models.Order{{ID: uuid.New()}}, 1, nil
	}}
	w := doJSON(newOrderRouter(svc), http.MethodGet, "/orders?limit=500&offset=5&status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.OrderListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
	assert.Len(t, resp.Orders, 1)
}

func TestDeleteOrder(t *testing.T) {
	svc := &mockOrderService{DeleteFunc: func(context.Context, uuid.UUID) error { return nil }}
	w := doJSON(newOrderRouter(svc), http.MethodDelete, "/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(newOrderRouter(svc), http.MethodDelete, "/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteOrder_CompensationIncomplete(t *testing.T) {
	svc := &mockOrderService{DeleteFunc: func(context.Context, uuid.UUID) error {
		return fmt.Errorf("%w: variant row missing", service.ErrCompensationIncomplete)
	}}
	w := doJSON(newOrderRouter(svc), http.MethodDelete, "/orders/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var body dto.BaseError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "compensation_incomplete", body.Code)
	assert.Contains(t, body.Message, "variant row missing")
}

func TestCreateOrder_ZoneIsCheckedByService(t *testing.T) {
	svc := &mockOrderService{CreateFunc: func(_ context.Context, in service.CreateOrderInput) (*models.Order, error) {
		if _, err := service.ParseZone(in.Zone); err != nil {
			return nil, err
		}
		return &models.Order{ID: uuid.New()}, nil
	}}

	for name, zone := range map[string]any{"missing": nil, "unknown": "Dhaka city"} {
		t.Run(name, func(t *testing.T) {
			body := validCreateBody()
			if zone == nil {
				delete(body, "zone")
			} else {
				body["zone"] = zone
			}
			w := doJSON(newOrderRouter(svc), http.MethodPost, "/orders", body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var resp dto.BaseError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_zone", resp.Code)
		})
	}
}

func TestGetShippingQuote_MissingZone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &mockOrderService{QuoteFunc: func(_ context.Context, in service.QuoteInput) (*service.ShippingQuote, error) {
		_, err := service.ParseZone(in.Zone)
		return nil, err
	}}
	r := gin.New()
	r.POST("/shipping/quote", NewOrderHandler(svc, zap.NewNop()).GetShippingQuote)

	w := doJSON(r, http.MethodPost, "/shipping/quote", map[string]any{
		"lines": []map[string]any{{"product_id": uuid.NewString(), "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
