package retry

import (
	"context"
	"testing"
	"time"
)

func TestRetryable(t *testing.T) {
	p := Default()
	for _, status := range []int{429, 500, 502, 503, 504} {
		if !p.Retryable(status) {
			t.Errorf("status %d should be retryable", status)
		}
	}
	for _, status := range []int{200, 301, 403, 404, 418} {
		if p.Retryable(status) {
			t.Errorf("status %d should not be retryable", status)
		}
	}
}

func TestBackoffGrowth(t *testing.T) {
	p := Policy{
		MaxAttempts:  5,
		StartBackoff: time.Second,
		MaxBackoff:   10 * time.Second,
		Factor:       2,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestNormalized(t *testing.T) {
	p := Policy{}.Normalized()
	def := Default()
	if p.MaxAttempts != def.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", p.MaxAttempts, def.MaxAttempts)
	}
	if p.StartBackoff != def.StartBackoff || p.MaxBackoff != def.MaxBackoff {
		t.Errorf("backoff defaults not applied: %+v", p)
	}
	if !p.Retryable(503) {
		t.Error("normalized policy lost the default status set")
	}

	// Valid fields survive normalization.
	custom := Policy{MaxAttempts: 7, StartBackoff: time.Millisecond, MaxBackoff: time.Second, Factor: 3, Statuses: []int{500}}.Normalized()
	if custom.MaxAttempts != 7 || custom.Factor != 3 || custom.Retryable(429) {
		t.Errorf("normalization clobbered valid fields: %+v", custom)
	}
}

func TestWaitCancelled(t *testing.T) {
	p := Policy{StartBackoff: time.Hour, MaxBackoff: time.Hour, Factor: 2, MaxAttempts: 2}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Wait(ctx, 1)
	}()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Wait returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}
