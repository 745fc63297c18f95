package output

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TransferInfo tracks the displayed state of one transfer.
type TransferInfo struct {
	Name       string
	TotalSize  int64
	Downloaded int64
	Completed  bool
	Failure    string
	StartTime  time.Time
	Index      int
}

// Manager renders a live view of running transfers by rewriting its
// own terminal lines on a ticker. It only observes: transfer
// correctness never depends on it.
type Manager struct {
	transfers   map[string]*TransferInfo
	mutex       sync.RWMutex
	numLines    int
	count       int
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
	displayTick time.Duration
	quiet       bool
}

func NewManager() *Manager {
	return &Manager{
		transfers:   make(map[string]*TransferInfo),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

// SetQuiet disables the live display; summary printing still works.
func (m *Manager) SetQuiet(quiet bool) {
	m.quiet = quiet
}

// Register adds a transfer line keyed by name and returns the name for
// convenience. Total size may be unknown (0) until SetTotal.
func (m *Manager) Register(name string, totalSize int64) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	m.transfers[name] = &TransferInfo{
		Name:      name,
		TotalSize: totalSize,
		StartTime: time.Now(),
		Index:     m.count,
	}
	return name
}

func (m *Manager) SetTotal(name string, totalSize int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.transfers[name]; exists {
		info.TotalSize = totalSize
	}
}

func (m *Manager) Update(name string, bytesDownloaded int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.transfers[name]; exists {
		info.Downloaded += int64(bytesDownloaded)
	}
}

func (m *Manager) Complete(name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.transfers[name]; exists {
		info.Completed = true
	}
}

func (m *Manager) Fail(name string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.transfers[name]; exists {
		info.Completed = true
		if err != nil {
			info.Failure = err.Error()
		} else {
			info.Failure = "cancelled"
		}
	}
}

func (m *Manager) StartDisplay() {
	if m.quiet {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	if m.quiet {
		return
	}
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) sortTransfers() (active, completed []*TransferInfo) {
	all := make([]*TransferInfo, 0, len(m.transfers))
	for _, info := range m.transfers {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	for _, info := range all {
		if info.Completed {
			completed = append(completed, info)
		} else if info.Downloaded > 0 {
			active = append(active, info)
		}
	}
	return active, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.numLines != 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}
	active, completed := m.sortTransfers()

	// Finished lines first so the moving part stays at the bottom.
	for _, info := range completed {
		name := truncateName(info.Name, 40)
		if info.Failure != "" {
			fmt.Printf("%s %s %s\n", errorStyle.Render(StyleSymbols["fail"]), name, debugStyle.Render(info.Failure))
		} else {
			fmt.Printf("%s %s %s\n", successStyle.Render(StyleSymbols["pass"]), name, debugStyle.Render(FormatBytes(uint64(info.Downloaded))))
		}
	}
	for _, info := range active {
		name := truncateName(info.Name, 40)
		elapsed := time.Since(info.StartTime).Seconds()
		if info.TotalSize > 0 {
			bar := PrintProgressBar(info.Downloaded, info.TotalSize, 30)
			fmt.Printf("%s %s %s%s\n", pendingStyle.Render(StyleSymbols["pending"]), name, bar, debugStyle.Render(FormatSpeed(info.Downloaded, elapsed)))
		} else {
			fmt.Printf("%s %s %s %s\n", pendingStyle.Render(StyleSymbols["pending"]), name, debugStyle.Render(FormatBytes(uint64(info.Downloaded))), debugStyle.Render(FormatSpeed(info.Downloaded, elapsed)))
		}
	}
	m.numLines = len(active) + len(completed)
}

// Summary returns finished/failed counts and the total bytes moved.
func (m *Manager) Summary() (finished, failed int, totalBytes int64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.transfers {
		if !info.Completed {
			continue
		}
		if info.Failure != "" {
			failed++
		} else {
			finished++
			totalBytes += info.Downloaded
		}
	}
	return finished, failed, totalBytes
}
