package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter allows maxTokens calls per refillInterval with bursts up to
// maxTokens.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(refillInterval/time.Duration(maxTokens)), maxTokens)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
