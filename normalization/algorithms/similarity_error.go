package algorithms

import (
	"errors"
	"fmt"
)

// SimilarityError ошибка системы схожести
type SimilarityError struct {
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

// Error реализует интерфейс error
func (e *SimilarityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает вложенную ошибку
func (e *SimilarityError) Unwrap() error {
	return e.Err
}

// Коды ошибок
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidWeights   = "INVALID_WEIGHTS"
	ErrCodeInvalidThreshold = "INVALID_THRESHOLD"
)

// NewSimilarityError создает новую ошибку
func NewSimilarityError(code, message string, err error) *SimilarityError {
	return &SimilarityError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetail добавляет детали к ошибке
func (e *SimilarityError) WithDetail(key string, value interface{}) *SimilarityError {
	e.Details[key] = value
	return e
}

// IsInvalidInput проверяет, является ли ошибка ошибкой неверного ввода
func IsInvalidInput(err error) bool {
	var se *SimilarityError
	return errors.As(err, &se) && se.Code == ErrCodeInvalidInput
}

// ValidateWeights проверяет валидность весов
func ValidateWeights(weights *SimilarityWeights) error {
	if weights == nil {
		return NewSimilarityError(ErrCodeInvalidWeights, "weights cannot be nil", nil)
	}

	// Проверяем, что все веса неотрицательны
	if weights.EditDistance < 0 || weights.WordSet < 0 ||
		weights.PositionalToken < 0 || weights.CharNGram < 0 {
		return NewSimilarityError(ErrCodeInvalidWeights, "all weights must be non-negative", nil).
			WithDetail("weights", *weights)
	}

	if total := weights.Total(); total <= 0 {
		return NewSimilarityError(ErrCodeInvalidWeights, "total weight must be greater than 0", nil).
			WithDetail("total", total)
	}

	return nil
}

// ValidateThreshold проверяет валидность порога.
// Нулевой порог запрещен: при нем любые два непустых текста считались бы дубликатами.
func ValidateThreshold(threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return NewSimilarityError(ErrCodeInvalidThreshold,
			fmt.Sprintf("threshold must be in (0, 1], got %.2f", threshold), nil).
			WithDetail("threshold", threshold)
	}
	return nil
}
