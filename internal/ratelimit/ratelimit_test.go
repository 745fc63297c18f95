package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireWithinCapacity(t *testing.T) {
	limiter := New(5, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("acquiring within capacity took %v, expected no waiting", elapsed)
	}
}

func TestAcquireBeyondCapacityWaits(t *testing.T) {
	// 2 permits per 100ms, so the 5th permit needs at least one full
	// replenish interval beyond the burst.
	limiter := New(2, 100*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	// Burst covers 2 permits; the remaining 3 need 3 replenish
	// intervals of 50ms each.
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Fatalf("5 permits granted in %v, expected rate limiting to slow them down", elapsed)
	}
}

func TestAcquireCancelled(t *testing.T) {
	limiter := New(1, time.Hour)
	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- limiter.Acquire(cancelCtx)
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error from cancelled acquire")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
}

func TestNilLimiterAdmits(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
}
