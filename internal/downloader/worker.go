package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

// runTask performs one task end-to-end: Scheduled → Running →
// {Completed | Failed}. On any failure, cancellation included, the
// partial destination file is removed before the error is surfaced.
func (d *ConcurrentDownloader) runTask(ctx context.Context, task *Task) error {
	task.setStatus(StatusRunning)
	if err := d.download(ctx, task); err != nil {
		d.cleanupFailed(task, err)
		return err
	}
	task.setStatus(StatusCompleted)
	if cb := task.Callbacks.OnFinish; cb != nil {
		cb(task)
	}
	return nil
}

// download runs the retry loop. Each attempt acquires its own
// rate-limit permit. Retryable statuses and transport hiccups are
// retried with bounded exponential backoff; everything else fails the
// task at once.
func (d *ConcurrentDownloader) download(ctx context.Context, task *Task) error {
	log := utils.GetLogger("downloader")
	if err := os.MkdirAll(task.SaveDir, 0755); err != nil {
		return fmt.Errorf("error creating save directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Debug().Str("url", task.URL).Int("attempt", attempt).Msg("Retrying download")
			if err := d.policy.Wait(ctx, attempt-1); err != nil {
				return err
			}
		}
		retryable, err := d.attempt(ctx, task)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", d.policy.MaxAttempts, lastErr)
}

func (d *ConcurrentDownloader) attempt(ctx context.Context, task *Task) (retryable bool, err error) {
	if err := d.limiter.Acquire(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return false, fmt.Errorf("error creating GET request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if d.policy.Retryable(resp.StatusCode) {
			return true, fmt.Errorf("retryable status code: %d", resp.StatusCode)
		}
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > 0 {
		task.setSize(resp.ContentLength)
	}
	if cb := task.Callbacks.OnStart; cb != nil {
		cb(task, task.Size())
	}
	return d.stream(ctx, task, resp.Body)
}

// stream copies the body to the destination file in ChunkSize pieces.
// The file is truncated on open: a retried task restarts from byte 0.
func (d *ConcurrentDownloader) stream(ctx context.Context, task *Task, body io.Reader) (retryable bool, err error) {
	outFile, err := os.Create(task.Path())
	if err != nil {
		return false, fmt.Errorf("error creating output file: %w", err)
	}
	defer outFile.Close()

	buffer := make([]byte, task.ChunkSize)
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return false, fmt.Errorf("error writing to output file: %w", writeErr)
			}
			if cb := task.Callbacks.OnChunk; cb != nil {
				cb(task, bytesRead)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return false, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return true, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
}

// cleanupFailed removes the partial file so no truncated artifact is
// left behind, then records the terminal state.
func (d *ConcurrentDownloader) cleanupFailed(task *Task, cause error) {
	log := utils.GetLogger("downloader")
	if _, statErr := os.Stat(task.Path()); statErr == nil {
		if rmErr := os.Remove(task.Path()); rmErr != nil {
			log.Warn().Str("file", task.Path()).Err(rmErr).Msg("Could not remove partial file")
		}
	}
	task.fail(cause)
	if cb := task.Callbacks.OnFail; cb != nil {
		cb(task)
	}
}
