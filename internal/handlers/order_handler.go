package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"fulfillment-service/internal/dto"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders service.OrderService
	log    *zap.Logger
}

func NewOrderHandler(orders service.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid id", []dto.FieldError{{Field: "id", Message: "must be uuid"}}))
		return uuid.Nil, false
	}
	return id, true
}

// respondOrder отдаёт заказ; незавершённая компенсация не ошибка для клиента:
// статус уже сменился, а расхождение остатков отражается в warnings.
func (h *OrderHandler) respondOrder(c *gin.Context, status int, ord *models.Order, err error) {
	if err != nil && !(ord != nil && errors.Is(err, service.ErrCompensationIncomplete)) {
		writeError(c, h.log, err)
		return
	}
	resp := dto.NewOrderResponse(ord)
	if err != nil {
		h.log.Warn("compensation incomplete", zap.String("order_id", ord.ID.String()), zap.Error(err))
		resp.Warnings = append(resp.Warnings, service.Kind(err))
	}
	c.JSON(status, resp)
}

// CreateOrder godoc
// @Summary Оформление заказа
// @Description Резервирует остатки по всем строкам и создаёт заказ (наложенный платёж). Без токена нужен guest.
// @Tags orders
// @Accept json
// @Produce json
// @Param order body dto.CreateOrderRequest true "Заказ"
// @Success 201 {object} dto.OrderResponse
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 404 {object} dto.NotFoundErrorResponse
// @Failure 409 {object} dto.ConflictErrorResponse "Нет остатка или цена изменилась"
// @Failure 422 {object} dto.UnprocessableErrorResponse
// @Failure 503 {object} dto.UnavailableErrorResponse "Повторите запрос"
// @Router /api/v1/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, h.log, err)
		return
	}
	ord, err := h.orders.CreateOrder(c.Request.Context(), req.ToInput())
	h.respondOrder(c, http.StatusCreated, ord, err)
}

// GetShippingQuote godoc
// @Summary Расчёт доставки
// @Tags shipping
// @Accept json
// @Produce json
// @Param quote body dto.QuoteRequest true "Строки и зона"
// @Success 200 {object} service.ShippingQuote
// @Failure 400 {object} dto.ValidationErrorResponse
// @Failure 422 {object} dto.UnprocessableErrorResponse
// @Router /api/v1/shipping/quote [post]
func (h *OrderHandler) GetShippingQuote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, h.log, err)
		return
	}
	q, err := h.orders.GetShippingQuote(c.Request.Context(), req.ToInput())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetOrder godoc
// @Summary Заказ по id
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Success 200 {object} dto.OrderResponse
// @Failure 404 {object} dto.NotFoundErrorResponse
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ord, err := h.orders.GetOrder(c.Request.Context(), id)
	h.respondOrder(c, http.StatusOK, ord, err)
}

// ListOrders godoc
// @Summary Список заказов
// @Description Покупатель видит свои заказы, администратор: все
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Статус"
// @Param limit query int false "Лимит" default(20)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} dto.OrderListResponse
// @Router /api/v1/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	f := service.ListFilter{}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if s := c.Query("status"); s != "" {
		st := models.OrderStatus(s)
		f.Status = &st
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	list, total, err := h.orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	resp := dto.OrderListResponse{Orders: make([]dto.OrderResponse, 0, len(list)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, o := range list {
		resp.Orders = append(resp.Orders, dto.NewOrderResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder godoc
// @Summary Отмена заказа
// @Description Возвращает зарезервированные остатки. Повторный вызов безопасен.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Param body body dto.CancelOrderRequest false "Причина"
// @Success 200 {object} dto.OrderResponse
// @Failure 403 {object} dto.ForbiddenErrorResponse
// @Failure 409 {object} dto.ConflictErrorResponse "Заказ уже отправлен"
// @Router /api/v1/orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, h.log, err)
			return
		}
	}
	ord, err := h.orders.CancelOrder(c.Request.Context(), id, req.Reason)
	h.respondOrder(c, http.StatusOK, ord, err)
}

// UpdateStatus godoc
// @Summary Смена статуса заказа
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Param body body dto.UpdateStatusRequest true "Новый статус"
// @Success 200 {object} dto.OrderResponse
// @Failure 403 {object} dto.ForbiddenErrorResponse
// @Failure 409 {object} dto.ConflictErrorResponse
// @Router /api/v1/orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, h.log, err)
		return
	}
	ord, err := h.orders.TransitionOrderStatus(c.Request.Context(), id, models.OrderStatus(req.Status))
	h.respondOrder(c, http.StatusOK, ord, err)
}

// DeleteOrder godoc
// @Summary Удаление заказа
// @Description Только заказ в статусе pending; остатки возвращаются
// @Tags orders
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Success 204
// @Failure 409 {object} dto.ConflictErrorResponse
// @Router /api/v1/orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
