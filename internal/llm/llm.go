package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cukesight/backend/internal/domain"
)

// Embedder turns text into a fixed-dimension vector.
//
// Embed fails with domain.ErrEmptyText for blank input, wraps
// domain.ErrUpstreamUnavailable when the backend cannot be reached or times
// out, and wraps domain.ErrInvalidResponse when the backend returns a
// malformed or empty vector. It never substitutes a zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

type GenerateRequest struct {
	Prompt        string
	SystemMessage string
	MaxTokens     int
	Temperature   float32
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Model() string
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyText
	}
	return nil
}

// checkVector rejects empty vectors and, when dim is known, wrong lengths.
func checkVector(backend string, vector []float32, dim int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: %s returned an empty embedding", domain.ErrInvalidResponse, backend)
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: %s returned %d dimensions, expected %d", domain.ErrInvalidResponse, backend, len(vector), dim)
	}
	return nil
}

// statusError classifies an HTTP status from a backend. Throttling, timeouts
// and server errors are upstream unavailability; other failures are not retryable.
func statusError(backend string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return domain.Unavailable(backend, err)
	default:
		return fmt.Errorf("%s request failed with status %d: %w", backend, status, err)
	}
}

// transportError classifies an error that carried no HTTP status.
func transportError(ctx context.Context, backend string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(backend, fmt.Errorf("timed out: %w", err))
	}
	return domain.Unavailable(backend, err)
}
