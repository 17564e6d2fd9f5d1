package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers classify with errors.Is.
var (
	// ErrValidation marks malformed input: unparsable payloads, missing metadata.
	ErrValidation = errors.New("validation error")
	// ErrUpstreamUnavailable marks an unreachable or timed out backend. Retryable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrDataInconsistency marks a relational write whose vector counterpart is missing.
	ErrDataInconsistency = errors.New("data inconsistency")
	// ErrBackendAnswerFormat marks generated output that cannot be parsed as the requested structure.
	ErrBackendAnswerFormat = errors.New("backend answer format error")

	ErrEmptyText       = errors.New("cannot embed empty text")
	ErrInvalidResponse = errors.New("invalid response from backend")
	ErrNotFound        = errors.New("not found")
)

// Validationf wraps a formatted message with ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps err with ErrUpstreamUnavailable, naming the backend.
func Unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, backend, err)
}

// IsRetryable reports whether a caller may retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
