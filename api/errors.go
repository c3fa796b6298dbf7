package api

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when vectors of different lengths are compared
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrUnknownQuestionType is returned when no anchor sets are registered for a question type
	ErrUnknownQuestionType = errors.New("unknown question type")
	// ErrInvalidTemperature is returned when the softmax temperature is not a positive finite number
	ErrInvalidTemperature = errors.New("temperature must be a positive finite number")
	// ErrInvalidEpsilon is returned when the probability floor is negative or not finite
	ErrInvalidEpsilon = errors.New("epsilon must be a non-negative finite number")
	// ErrUnexpectedEmbeddingCount is returned when an embedder returns a different number of vectors than texts
	ErrUnexpectedEmbeddingCount = errors.New("embedder returned unexpected number of vectors")
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = errors.New("expected value is required for this scorer")
)

// ProviderError is an opaque failure reported by an embedding backend
type ProviderError struct {
	// Provider names the backend, e.g. "gemini" or "openai"
	Provider string
	// Status is the backend status code, 0 when the failure happened before a response
	Status int
	// Message is the backend's error message
	Message string
	// Err is the underlying error, if any
	Err error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s embedding provider error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s embedding provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
