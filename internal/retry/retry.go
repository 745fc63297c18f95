package retry

import (
	"context"
	"time"
)

// Policy decides whether a failed HTTP attempt is worth repeating and
// how long to wait before the next try. It carries no state; the
// attempt counter lives with the caller.
type Policy struct {
	MaxAttempts  int           // total attempts, first try included
	StartBackoff time.Duration // wait before the second attempt
	MaxBackoff   time.Duration // cap on exponential growth
	Factor       float64       // backoff multiplier between attempts
	Statuses     []int         // HTTP statuses considered transient
}

// Default returns the general purpose policy used across the tool.
func Default() Policy {
	return Policy{
		MaxAttempts:  4,
		StartBackoff: 1 * time.Second,
		MaxBackoff:   10 * time.Second,
		Factor:       2,
		Statuses:     []int{429, 500, 502, 503, 504},
	}
}

// Normalized returns a copy of p with invalid fields replaced by the
// defaults, so a partially filled policy stays usable.
func (p Policy) Normalized() Policy {
	def := Default()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.StartBackoff <= 0 {
		p.StartBackoff = def.StartBackoff
	}
	if p.MaxBackoff < p.StartBackoff {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Factor <= 1 {
		p.Factor = def.Factor
	}
	if p.Statuses == nil {
		p.Statuses = def.Statuses
	}
	return p
}

// Retryable reports whether status is in the transient set.
func (p Policy) Retryable(status int) bool {
	for _, s := range p.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Backoff returns the wait after the given failed attempt (1-based).
// Growth is exponential and bounded by MaxBackoff, no jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.StartBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.Factor
		if p.MaxBackoff > 0 && backoff >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Wait sleeps for the backoff following the given failed attempt,
// returning early if ctx is cancelled.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
