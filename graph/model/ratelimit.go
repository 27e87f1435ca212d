package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a ChatModel with a process-local request budget. Callers
// block until a request slot is available or their context ends.
//
// One limiter should sit at the provider boundary and be shared by every
// graph that uses the provider.
type RateLimited struct {
	next    ChatModel
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerMinute requests with bursts of up to burst.
// A non-positive requestsPerMinute disables limiting.
func NewRateLimited(next ChatModel, requestsPerMinute float64, burst int) *RateLimited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Chat implements ChatModel.
func (r *RateLimited) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ChatOut{}, err
	}
	return r.next.Chat(ctx, messages, tools)
}
