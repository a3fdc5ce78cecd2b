package handlers

import (
	"net/http"

	"fulfillment-service/internal/dto"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartHandler struct {
	carts service.CartService
	log   *zap.Logger
}

func NewCartHandler(carts service.CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, log: log}
}

// GetCart godoc
// @Summary Корзина пользователя
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CartResponse
// @Router /api/v1/cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

// AddItem godoc
// @Summary Добавить товар в корзину
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param item body dto.AddCartItemRequest true "Товар"
// @Success 200 {object} dto.CartResponse
// @Failure 404 {object} dto.NotFoundErrorResponse
// @Router /api/v1/cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, h.log, err)
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), service.AddCartItemInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

// UpdateItem godoc
// @Summary Изменить количество (0: удалить)
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param itemId path string true "ID строки"
// @Param body body dto.UpdateCartItemRequest true "Количество"
// @Success 200 {object} dto.CartResponse
// @Router /api/v1/cart/items/{itemId} [patch]
func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		validationError(c, h.log, err)
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, h.log, err)
		return
	}
	cart, err := h.carts.UpdateQuantity(c.Request.Context(), itemID, req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

// RemoveItem godoc
// @Summary Удалить строку корзины
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param itemId path string true "ID строки"
// @Success 200 {object} dto.CartResponse
// @Router /api/v1/cart/items/{itemId} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		validationError(c, h.log, err)
		return
	}
	cart, err := h.carts.RemoveItem(c.Request.Context(), itemID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

// Clear godoc
// @Summary Очистить корзину
// @Tags cart
// @Security BearerAuth
// @Success 204
// @Router /api/v1/cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context()); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
