package dto

// BaseError универсальный корневой формат ошибки
// Code: машинно-ориентированный код (snake_case), совпадает с service.Kind
// Message: краткое человеко-читаемое описание
// Details: дополнительная строка (пояснение / fragment)
// Fields: для валидационных ошибок (имя поля + текст)
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError отдельная ошибка по конкретному полю
// Field: путь к полю (например: "lines[0].quantity" или "shipping_address.city")
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// ValidationErrorResponse 400
// Code: "validation"
type ValidationErrorResponse BaseError

// UnauthorizedErrorResponse 401
// Code: "unauthorized"
type UnauthorizedErrorResponse BaseError

// ForbiddenErrorResponse 403
// Code: "forbidden"
type ForbiddenErrorResponse BaseError

// NotFoundErrorResponse 404
// Code: "not_found"
type NotFoundErrorResponse BaseError

// ConflictErrorResponse 409
// Code: "insufficient_stock", "price_mismatch", "invalid_transition"
type ConflictErrorResponse BaseError

// UnprocessableErrorResponse 422
// Code: "inactive", "invalid_zone"
type UnprocessableErrorResponse BaseError

// UnavailableErrorResponse 503
// Code: "transient": запрос можно повторить
type UnavailableErrorResponse BaseError

// InternalErrorResponse 500
// Code: "internal"
type InternalErrorResponse BaseError

func NewValidationError(msg string, fields []FieldError) ValidationErrorResponse {
	return ValidationErrorResponse(BaseError{Code: "validation", Message: msg, Fields: fields})
}
func NewUnauthorizedError(msg string) UnauthorizedErrorResponse {
	return UnauthorizedErrorResponse(BaseError{Code: "unauthorized", Message: msg})
}
func NewInternalError(details string) InternalErrorResponse {
	return InternalErrorResponse(BaseError{Code: "internal", Message: "internal server error", Details: details})
}
