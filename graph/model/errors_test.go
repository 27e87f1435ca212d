package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("x"), false},
		{"transport", &ProviderError{Provider: "openai", Err: errors.New("reset")}, true},
		{"cancelled transport", &ProviderError{Provider: "openai", Err: context.Canceled}, false},
		{"rate limited", &ProviderError{Provider: "anthropic", StatusCode: 429, Err: errors.New("slow down")}, true},
		{"server error", &ProviderError{Provider: "google", StatusCode: 502, Err: errors.New("bad gateway")}, true},
		{"bad request", &ProviderError{Provider: "google", StatusCode: 400, Err: errors.New("bad")}, false},
		{"wrapped", fmt.Errorf("grade: %w", &ProviderError{StatusCode: 503, Err: errors.New("x")}), true},
		{"malformed", fmt.Errorf("%w: grade", ErrMalformedOutput), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}
	if got := err.Error(); got != "openai: status 429: slow down" {
		t.Errorf("unexpected message %q", got)
	}
}
