package errors

import (
	"errors"
	"fmt"
	"net/http"

	"commentdedup/dedup"
)

// AppError ошибка приложения с HTTP статусом и контекстом
type AppError struct {
	Code    int             `json:"status_code"` // HTTP статус код
	Message string          `json:"message"`     // Сообщение для пользователя
	Kind    dedup.ErrorKind `json:"kind,omitempty"`
	Err     error           `json:"-"` // Внутренняя ошибка для логов, не сериализуется
	Context string          `json:"-"` // Дополнительный контекст (функция, параметры)
}

// Error реализует интерфейс error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap возвращает вложенную ошибку для errors.Is и errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode возвращает HTTP статус код ошибки
func (e *AppError) StatusCode() int {
	return e.Code
}

// WithContext добавляет контекст к ошибке
func (e *AppError) WithContext(context string) *AppError {
	e.Context = context
	return e
}

// NewNotFoundError создает ошибку 404 Not Found
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, Err: err}
}

// NewValidationError создает ошибку 400 Bad Request
func NewValidationError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NewConflictError создает ошибку 409 Conflict
func NewConflictError(message string, err error) *AppError {
	return &AppError{Code: http.StatusConflict, Message: message, Err: err}
}

// NewTooManyRequestsError создает ошибку 429 Too Many Requests
func NewTooManyRequestsError(message string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Message: message}
}

// NewInternalError создает ошибку 500 Internal Server Error.
// Пользователь видит общее сообщение, детали только в логах.
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: "Внутренняя ошибка сервера",
		Err:     errors.Join(errors.New(message), err),
	}
}

// statusByKind HTTP статус для каждого вида ошибки обработки
var statusByKind = map[dedup.ErrorKind]int{
	dedup.KindConfiguration:   http.StatusBadRequest,
	dedup.KindSourceRead:      http.StatusUnprocessableEntity,
	dedup.KindMemoryPressure:  http.StatusServiceUnavailable,
	dedup.KindBatchTimeout:    http.StatusGatewayTimeout,
	dedup.KindBatchProcessing: http.StatusInternalServerError,
}

// FromError превращает ошибку в AppError. Ошибки обработки получают
// статус по своему виду, остальные считаются внутренними.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var de *dedup.Error
	if errors.As(err, &de) {
		code, ok := statusByKind[de.Kind]
		if !ok {
			code = http.StatusInternalServerError
		}
		return &AppError{Code: code, Message: de.Error(), Kind: de.Kind, Err: err}
	}

	return NewInternalError("unexpected error", err)
}
