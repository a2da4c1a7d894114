package dedup

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind вид ошибки обработки
type ErrorKind string

const (
	// KindConfiguration неверная конфигурация, обнаруживается до начала обработки
	KindConfiguration ErrorKind = "configuration_error"
	// KindSourceRead поврежденная или нечитаемая порция источника
	KindSourceRead ErrorKind = "source_read_error"
	// KindMemoryPressure превышен потолок памяти
	KindMemoryPressure ErrorKind = "memory_pressure_error"
	// KindBatchTimeout порция не уложилась в отведенное время
	KindBatchTimeout ErrorKind = "batch_timeout_error"
	// KindBatchProcessing прочие сбои обработки порции (в том числе panic)
	KindBatchProcessing ErrorKind = "batch_processing_error"
)

// Error ошибка обработки с указанием вида и порции
type Error struct {
	Kind    ErrorKind
	Message string
	BatchID int
	Details map[string]interface{}
	Err     error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.BatchID > 0 {
		prefix = fmt.Sprintf("%s (batch %d)", e.Kind, e.BatchID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap возвращает вложенную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail добавляет детали к ошибке
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewConfigurationError создает ошибку конфигурации
func NewConfigurationError(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

// NewSourceReadError создает ошибку чтения порции
func NewSourceReadError(batchID int, err error) *Error {
	return &Error{Kind: KindSourceRead, Message: "failed to read source chunk", BatchID: batchID, Err: err}
}

// NewMemoryPressureError создает ошибку превышения потолка памяти
func NewMemoryPressureError(pressure float64, ceilingMB int) *Error {
	return (&Error{
		Kind:    KindMemoryPressure,
		Message: fmt.Sprintf("memory pressure %.2f exceeds ceiling of %d MB", pressure, ceilingMB),
	}).WithDetail("pressure", pressure)
}

// NewBatchTimeoutError создает ошибку таймаута порции
func NewBatchTimeoutError(batchID int, timeout time.Duration, err error) *Error {
	return &Error{
		Kind:    KindBatchTimeout,
		Message: fmt.Sprintf("batch exceeded timeout of %s", timeout),
		BatchID: batchID,
		Err:     err,
	}
}

// NewBatchProcessingError создает ошибку обработки порции
func NewBatchProcessingError(batchID int, message string, err error) *Error {
	return &Error{Kind: KindBatchProcessing, Message: message, BatchID: batchID, Err: err}
}

// KindOf возвращает вид ошибки или пустую строку для посторонних ошибок
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsConfigurationError проверяет, является ли ошибка ошибкой конфигурации
func IsConfigurationError(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsSourceReadError проверяет, является ли ошибка ошибкой чтения источника
func IsSourceReadError(err error) bool {
	return KindOf(err) == KindSourceRead
}

// IsMemoryPressureError проверяет, является ли ошибка ошибкой давления памяти
func IsMemoryPressureError(err error) bool {
	return KindOf(err) == KindMemoryPressure
}

// IsBatchTimeoutError проверяет, является ли ошибка таймаутом порции
func IsBatchTimeoutError(err error) bool {
	return KindOf(err) == KindBatchTimeout
}
