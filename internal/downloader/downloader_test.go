package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/ratelimit"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/retry"
)

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  attempts,
		StartBackoff: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
		Factor:       2,
		Statuses:     []int{429, 500, 502, 503, 504},
	}
}

func TestRunEmpty(t *testing.T) {
	d := New(Config{Workers: 4})
	status, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != (Status{}) {
		t.Fatalf("expected all-zero status, got %+v", status)
	}
}

func TestDownloadsAllTasks(t *testing.T) {
	payload := strings.Repeat("wallpaper-bytes-", 512)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 3, Retry: fastRetry(2)})
	for i := 0; i < 5; i++ {
		d.Schedule(NewTask(fmt.Sprintf("%s/img-%d.png", server.URL, i), dir, ""))
	}

	status, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Completed != 5 || status.Failed != 0 || status.Scheduled != 0 || status.InFlight != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	for i := 0; i < 5; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("img-%d.png", i)))
		if err != nil {
			t.Fatalf("reading result %d: %v", i, err)
		}
		if string(data) != payload {
			t.Fatalf("file %d contents differ, got %d bytes want %d", i, len(data), len(payload))
		}
	}
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	const tasks, limit = 8, 3
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: limit, Retry: fastRetry(2)})
	for i := 0; i < tasks; i++ {
		d.Schedule(NewTask(fmt.Sprintf("%s/%d.jpg", server.URL, i), dir, ""))
	}
	status, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Completed != tasks {
		t.Fatalf("completed %d of %d", status.Completed, tasks)
	}
	if got := peak.Load(); got > limit {
		t.Fatalf("observed %d concurrent transfers, limit is %d", got, limit)
	}
	if got := peak.Load(); got < limit {
		t.Fatalf("observed only %d concurrent transfers, expected the pool to fill to %d", got, limit)
	}
}

func TestSlotReplacement(t *testing.T) {
	// 5 tasks, 2 slots: exactly 2 transfers start immediately, the 3rd
	// only after one of the first two finishes.
	arrivals := make(chan string, 5)
	release := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrivals <- r.URL.Path
		<-release
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 2, Retry: fastRetry(1)})
	for i := 0; i < 5; i++ {
		d.Schedule(NewTask(fmt.Sprintf("%s/%d.jpg", server.URL, i), dir, ""))
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background())
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-arrivals:
		case <-time.After(2 * time.Second):
			t.Fatalf("transfer %d did not start", i+1)
		}
	}
	select {
	case <-arrivals:
		t.Fatal("third transfer started while both slots were busy")
	case <-time.After(100 * time.Millisecond):
	}

	status := d.StatusSnapshot()
	if status.InFlight != 2 || status.Scheduled != 3 {
		t.Fatalf("mid-run status %+v, want 2 in flight and 3 scheduled", status)
	}

	once.Do(func() { close(release) })
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := d.StatusSnapshot()
	if final.Completed != 5 || final.InFlight != 0 || final.Scheduled != 0 {
		t.Fatalf("final status %+v", final)
	}
}

func TestFailFastCancelsSiblings(t *testing.T) {
	// Task 2 fails with a non-retryable status while 1 and 3 stream
	// slowly; both must be cancelled and their partial files removed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "partial-bytes")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 3, Retry: fastRetry(1)})
	d.Schedule(NewTask(server.URL+"/slow-1.jpg", dir, ""))
	d.Schedule(NewTask(server.URL+"/bad.jpg", dir, ""))
	d.Schedule(NewTask(server.URL+"/slow-3.jpg", dir, ""))

	status, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected the batch to fail")
	}
	if !strings.Contains(err.Error(), "unexpected status code: 404") {
		t.Fatalf("Run returned %v, want the originating 404 error", err)
	}
	if status.Failed != 3 || status.InFlight != 0 {
		t.Fatalf("status after abort %+v, want all 3 terminal-failed", status)
	}
	for _, name := range []string{"slow-1.jpg", "bad.jpg", "slow-3.jpg"} {
		if _, statErr := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(statErr) {
			t.Errorf("partial file %s still on disk", name)
		}
	}
}

func TestCompletedFilesSurviveLaterFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "complete-file")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 1, Retry: fastRetry(1)})
	d.Schedule(NewTask(server.URL+"/good.jpg", dir, ""))
	d.Schedule(NewTask(server.URL+"/bad.jpg", dir, ""))

	_, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure from second task")
	}
	if data, readErr := os.ReadFile(filepath.Join(dir, "good.jpg")); readErr != nil || string(data) != "complete-file" {
		t.Fatalf("completed file was not retained: %v", readErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "bad.jpg")); !os.IsNotExist(statErr) {
		t.Error("failed task left a file behind")
	}
}

func TestCallerCancellation(t *testing.T) {
	started := make(chan struct{}, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "some-bytes")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 2, Retry: fastRetry(1)})
	d.Schedule(NewTask(server.URL+"/a.jpg", dir, ""))
	d.Schedule(NewTask(server.URL+"/b.jpg", dir, ""))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Run(ctx)
		errCh <- err
	}()
	<-started
	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	for _, name := range []string{"a.jpg", "b.jpg"} {
		if _, statErr := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(statErr) {
			t.Errorf("cancelled task left partial file %s", name)
		}
	}
}

func TestRateLimiterGatesRequests(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, "x")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{
		Workers: 4,
		Limiter: ratelimit.New(1, 120*time.Millisecond),
		Retry:   fastRetry(1),
	})
	for i := 0; i < 4; i++ {
		d.Schedule(NewTask(fmt.Sprintf("%s/%d.jpg", server.URL, i), dir, ""))
	}
	start := time.Now()
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// One permit per 120ms: 4 requests need at least 3 replenish waits.
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("4 rate-limited requests finished in %v", elapsed)
	}
	if got := requests.Load(); got != 4 {
		t.Fatalf("server saw %d requests, want 4", got)
	}
}

func TestScheduleBetweenBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(Config{Workers: 2, Retry: fastRetry(1)})
	d.Schedule(NewTask(server.URL+"/first.jpg", dir, ""))
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	d.Schedule(NewTask(server.URL+"/second.jpg", dir, ""))
	status, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if status.Completed != 2 {
		t.Fatalf("completed %d across batches, want 2", status.Completed)
	}
}

func TestNewTaskFilenameDefaults(t *testing.T) {
	task := NewTask("https://w.wallhaven.cc/full/x8/wallhaven-x8g3oz.png", "/tmp/walls", "")
	if task.Filename != "wallhaven-x8g3oz.png" {
		t.Errorf("derived filename %q", task.Filename)
	}
	task = NewTask("https://example.com", "/tmp/walls", "")
	if task.Filename != "download" {
		t.Errorf("fallback filename %q", task.Filename)
	}
	task = NewTask("https://example.com/a.png", "/tmp/walls", "custom.png")
	if task.Filename != "custom.png" {
		t.Errorf("explicit filename ignored, got %q", task.Filename)
	}
}
