package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a shared admission gate bounding how many requests may be
// issued within a time window. Permits replenish continuously at
// capacity/window and the pool never holds more than capacity permits.
// It is safe for use from multiple goroutines.
type Limiter struct {
	pool *rate.Limiter
}

// New returns a limiter granting capacity permits per window.
func New(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Second
	}
	interval := window / time.Duration(capacity)
	return &Limiter{pool: rate.NewLimiter(rate.Every(interval), capacity)}
}

// PerSecond returns a limiter granting n permits per second.
func PerSecond(n int) *Limiter {
	return New(n, time.Second)
}

// Acquire consumes one permit, suspending the caller until one is
// available. A nil limiter admits everything. The only error condition
// is cancellation of ctx while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.pool.Wait(ctx)
}
