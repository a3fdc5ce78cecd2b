package handlers

import (
	"errors"
	"net/http"

	"fulfillment-service/internal/dto"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[string]int{
	"unauthorized":       http.StatusUnauthorized,
	"forbidden":          http.StatusForbidden,
	"validation":         http.StatusBadRequest,
	"not_found":          http.StatusNotFound,
	"inactive":           http.StatusUnprocessableEntity,
	"invalid_zone":       http.StatusUnprocessableEntity,
	"insufficient_stock": http.StatusConflict,
	"price_mismatch":     http.StatusConflict,
	"invalid_transition": http.StatusConflict,
	"transient":          http.StatusServiceUnavailable,
	// заказ отменён, но часть резервов не вернулась; запись оставлена для разбора
	"compensation_incomplete": http.StatusConflict,
}

// writeError переводит ошибку сервиса в HTTP-ответ. Код ответа берётся из service.Kind.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	kind := service.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.Error("internal error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewInternalError(""))
		return
	}

	body := dto.BaseError{Code: kind, Message: err.Error()}

	var stockErr *service.StockError
	if errors.As(err, &stockErr) {
		body.Fields = []dto.FieldError{{
			Field:   stockErr.Target,
			Message: "requested " + stockErr.Requested.String() + " " + stockErr.Unit + ", available " + stockErr.Available.String(),
		}}
	}

	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
		log.Warn("transient failure", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func validationError(c *gin.Context, log *zap.Logger, err error) {
	log.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", []dto.FieldError{{Field: "body", Message: err.Error()}}))
}
