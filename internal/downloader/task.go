package downloader

import (
	"net/url"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

// TaskStatus is the lifecycle state of one transfer.
// Scheduled and Running are transient; Completed and Failed are
// terminal and never change afterwards.
type TaskStatus int

const (
	StatusScheduled TaskStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Callbacks are best-effort observer hooks for one task. They carry no
// return values and cannot influence scheduling; they exist for
// progress bars and logging only.
type Callbacks struct {
	OnStart  func(t *Task, totalSize int64) // headers received, before body streaming
	OnChunk  func(t *Task, written int)     // after each chunk write
	OnFinish func(t *Task)
	OnFail   func(t *Task)
}

// Task is one URL-to-file transfer unit. It is owned by the scheduler
// from the moment it is accepted until it reaches a terminal status;
// exactly one worker ever runs it.
type Task struct {
	ID        string
	URL       string
	SaveDir   string
	Filename  string
	ChunkSize int
	Callbacks Callbacks

	mu     sync.Mutex
	status TaskStatus
	err    error
	size   int64 // Content-Length of the last response, 0 if unknown
}

// NewTask builds a task for rawURL saved under saveDir. An empty
// filename defaults to the final path segment of the URL.
func NewTask(rawURL, saveDir, filename string) *Task {
	if filename == "" {
		if u, err := url.Parse(rawURL); err == nil {
			filename = path.Base(u.Path)
		}
	}
	if filename == "" || filename == "." || filename == "/" {
		filename = "download"
	}
	return &Task{
		ID:        uuid.NewString(),
		URL:       rawURL,
		SaveDir:   saveDir,
		Filename:  filename,
		ChunkSize: utils.DefaultChunkSize,
	}
}

// Path is the destination file location.
func (t *Task) Path() string {
	return filepath.Join(t.SaveDir, t.Filename)
}

func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the recorded failure cause, nil unless the task failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Size returns the total transfer size reported by the server, 0 when
// unknown.
func (t *Task) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Task) setStatus(s TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *Task) setSize(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.size = n
}

func (t *Task) fail(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.err = cause
}

// Status is a point-in-time snapshot of the downloader's queues,
// recomputed on demand.
type Status struct {
	Scheduled int
	InFlight  int
	Completed int
	Failed    int
}
