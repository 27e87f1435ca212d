package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a failed call to an LLM provider, normalized across SDKs.
type ProviderError struct {
	// Provider is "anthropic", "openai" or "google".
	Provider string

	// StatusCode is the HTTP status returned by the provider, or 0 when the
	// request never got a response.
	StatusCode int

	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later: rate limits,
// server errors and transport failures.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled)
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// IsRetryable reports whether err is a transient provider failure. It is
// meant for graph.RetryPolicy.Retryable on nodes that call a ChatModel.
// Malformed output is never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrMalformedOutput) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
