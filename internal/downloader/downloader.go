package downloader

import (
	"context"
	"errors"
	"sync"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/ratelimit"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/retry"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

// Config holds the knobs for a ConcurrentDownloader. Zero values fall
// back to sane defaults.
type Config struct {
	Workers int                // concurrent transfer slots, default 1
	Limiter *ratelimit.Limiter // global request gate, nil admits everything
	Retry   retry.Policy       // normalized on construction
	Client  utils.HTTPDoer     // defaults to a fresh utils.HTTPClient
}

// ConcurrentDownloader schedules a stream of download tasks onto a
// fixed number of concurrent slots. One fatal transfer failure aborts
// the whole batch: every sibling is cancelled, their partial files are
// removed, and the first error is returned.
type ConcurrentDownloader struct {
	workers int
	limiter *ratelimit.Limiter
	policy  retry.Policy
	client  utils.HTTPDoer

	mu        sync.Mutex
	pending   []*Task // FIFO, dequeued from the front
	inFlight  map[string]*Task
	completed []*Task
	failed    []*Task
}

func New(cfg Config) *ConcurrentDownloader {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Client == nil {
		cfg.Client = utils.NewHTTPClient(utils.HTTPClientConfig{})
	}
	return &ConcurrentDownloader{
		workers:  cfg.Workers,
		limiter:  cfg.Limiter,
		policy:   cfg.Retry.Normalized(),
		client:   cfg.Client,
		inFlight: make(map[string]*Task),
	}
}

// Schedule appends a task to the pending queue. It has no immediate
// side effect and may be called before Run or between batches.
func (d *ConcurrentDownloader) Schedule(task *Task) {
	if task.ChunkSize <= 0 {
		task.ChunkSize = utils.DefaultChunkSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, task)
}

// StatusSnapshot reports the current queue sizes. Safe at any time,
// including mid-run.
func (d *ConcurrentDownloader) StatusSnapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Scheduled: len(d.pending),
		InFlight:  len(d.inFlight),
		Completed: len(d.completed),
		Failed:    len(d.failed),
	}
}

// FailedTasks returns the tasks that reached the Failed state.
func (d *ConcurrentDownloader) FailedTasks() []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Task, len(d.failed))
	copy(out, d.failed)
	return out
}

type result struct {
	task *Task
	err  error
}

// Run drains the pending queue with at most Workers transfers in
// flight. Each finished slot is refilled immediately in FIFO order.
// On the first fatal failure all running siblings are cancelled, their
// cleanup is awaited, and the originating error is returned. Caller
// cancellation takes the same rollback path and returns ctx.Err().
// With nothing scheduled it returns an all-zero delta immediately.
func (d *ConcurrentDownloader) Run(ctx context.Context) (Status, error) {
	d.mu.Lock()
	pendingCount := len(d.pending)
	d.mu.Unlock()
	if pendingCount == 0 {
		return d.StatusSnapshot(), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result)
	var wg sync.WaitGroup

	launch := func() bool {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return false
		}
		task := d.pending[0]
		d.pending = d.pending[1:]
		d.inFlight[task.ID] = task
		d.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- result{task: task, err: d.runTask(runCtx, task)}
		}()
		return true
	}

	slots := min(d.workers, pendingCount)
	for i := 0; i < slots; i++ {
		launch()
	}

	var firstErr error
	for inFlight := slots; inFlight > 0; {
		res := <-results
		inFlight--
		d.retire(res.task, res.err)

		if res.err != nil && firstErr == nil && !errors.Is(res.err, context.Canceled) {
			// Fatal batch error: stop dequeuing and cancel the
			// siblings. They roll back their own partial files
			// before reporting here, so the loop keeps draining.
			firstErr = res.err
			cancel()
			continue
		}
		if firstErr == nil && ctx.Err() == nil && launch() {
			inFlight++
		}
	}
	wg.Wait()

	if firstErr != nil {
		return d.StatusSnapshot(), firstErr
	}
	if err := ctx.Err(); err != nil {
		return d.StatusSnapshot(), err
	}
	return d.StatusSnapshot(), nil
}

func (d *ConcurrentDownloader) retire(task *Task, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, task.ID)
	if err != nil {
		d.failed = append(d.failed, task)
	} else {
		d.completed = append(d.completed, task)
	}
}
