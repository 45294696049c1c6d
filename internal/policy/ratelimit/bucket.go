package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// BucketGate paces requests with a token bucket of burst 1.
type BucketGate struct {
	limiter *rate.Limiter
}

// NewBucketGate creates a BucketGate. A zero interval never blocks.
func NewBucketGate(interval time.Duration) *BucketGate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &BucketGate{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until a token is available, respecting the context.
func (g *BucketGate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	observeDelay(start)
	return nil
}
