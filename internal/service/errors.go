package service

import (
	"errors"
	"fmt"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInactive          = errors.New("not available for sale")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPriceMismatch     = errors.New("price mismatch")
	ErrInvalidZone       = errors.New("invalid shipping zone")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTransient         = errors.New("transient failure, retry later")

	// Статус заказа уже изменён, но часть резервов вернуть/списать не удалось
	ErrCompensationIncomplete = errors.New("inventory compensation incomplete")
	// Состояние штук на складе разошлось с журналом резервов
	ErrInventoryDrift = errors.New("inventory drift")
)

var (
	ErrProductNotFound      = fmt.Errorf("product %w", ErrNotFound)
	ErrVariantNotFound      = fmt.Errorf("variant %w", ErrNotFound)
	ErrSizeCategoryNotFound = fmt.Errorf("size category %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrCartItemNotFound     = fmt.Errorf("cart item %w", ErrNotFound)

	ErrEmptyItems           = fmt.Errorf("%w: empty items", ErrValidation)
	ErrQuantityInvalid      = fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	ErrWeightInvalid        = fmt.Errorf("%w: requested weight must be > 0", ErrValidation)
	ErrGuestContactRequired = fmt.Errorf("%w: guest orders require name and phone", ErrValidation)
	ErrAmbiguousLine        = fmt.Errorf("%w: line cannot reference both variant and size category", ErrValidation)
)

// StockError сообщает, сколько доступно на самом деле, чтобы клиент мог переспросить покупателя.
type StockError struct {
	Target    string
	Requested decimal.Decimal
	Available decimal.Decimal
	Unit      string // "pcs" или "kg"
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s %s, available %s %s",
		e.Target, e.Requested.String(), e.Unit, e.Available.String(), e.Unit)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type PriceMismatchError struct {
	Client decimal.Decimal
	Server decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch: client total %s, server total %s",
		e.Client.StringFixed(2), e.Server.StringFixed(2))
}

func (e *PriceMismatchError) Unwrap() error { return ErrPriceMismatch }

type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Kind возвращает стабильный код ошибки для клиентов.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, ErrInvalidZone):
		return "invalid_zone"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrCompensationIncomplete):
		return "compensation_incomplete"
	default:
		return "internal"
	}
}
