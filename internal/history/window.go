// Package history virtualizes a conversation log for display.
//
// Window tracks how many of the newest messages are materialized, and
// AutoScroll decides whether new messages pull the view to the bottom or
// raise a "new messages" affordance.
package history

import "sync"

const (
	// DefaultInitialWindow is the number of messages shown when a chat opens.
	DefaultInitialWindow = 5
	// DefaultBatchSize is how many older messages one expansion reveals.
	DefaultBatchSize = 20
)

// Window is the materialized tail of an append-only log.
type Window struct {
	initial int
	batch   int

	mu        sync.Mutex
	count     int
	total     int
	expanding bool
}

// NewWindow creates a Window. Non-positive sizes fall back to defaults.
func NewWindow(initial, batch int) *Window {
	if initial <= 0 {
		initial = DefaultInitialWindow
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Window{initial: initial, batch: batch, count: initial}
}

// Reset restores the initial window. Called only when the chat changes.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count = w.initial
	w.total = 0
	w.expanding = false
}

// SetTotal records the current log length.
func (w *Window) SetTotal(n int) {
	if n < 0 {
		n = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.total = n
}

// Total returns the last recorded log length.
func (w *Window) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// VisibleCount returns the number of materialized messages, never more than
// the log holds.
func (w *Window) VisibleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibleLocked()
}

func (w *Window) visibleLocked() int {
	if w.count > w.total {
		return w.total
	}
	return w.count
}

// CanExpand reports whether older messages remain hidden.
func (w *Window) CanExpand() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visibleLocked() < w.total
}

// Expanding reports whether an expansion is in flight.
func (w *Window) Expanding() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expanding
}

// BeginExpand marks an expansion in flight. It returns false, and changes
// nothing, when one is already running or nothing is hidden.
func (w *Window) BeginExpand() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expanding || w.visibleLocked() >= w.total {
		return false
	}
	w.expanding = true
	return true
}

// CompleteExpand grows the window by one batch, clamped to the log length,
// and returns the new visible count.
func (w *Window) CompleteExpand() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.expanding {
		return w.visibleLocked()
	}
	w.expanding = false
	next := w.visibleLocked() + w.batch
	if next > w.total {
		next = w.total
	}
	if next > w.count {
		w.count = next
	}
	return w.visibleLocked()
}

// AbortExpand clears an in-flight expansion without growing.
func (w *Window) AbortExpand() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expanding = false
}

// Expand runs a full expansion synchronously.
func (w *Window) Expand() bool {
	if !w.BeginExpand() {
		return false
	}
	w.CompleteExpand()
	return true
}

// Tail returns the last count elements of log.
func Tail[T any](log []T, count int) []T {
	if count <= 0 {
		return nil
	}
	if count > len(log) {
		count = len(log)
	}
	return log[len(log)-count:]
}
