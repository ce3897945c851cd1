// Package scheduler owns the delayed tasks of a chat session.
//
// Every debounce, expiry and idle timer is registered under a key so that a
// newer task replaces an older one, and so that the whole set can be torn
// down at once when the session switches chats or closes.
package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type task struct {
	id    uint64
	timer Timer
}

// Scheduler runs keyed, replaceable, cancellable tasks.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	tasks  map[string]*task
	nextID uint64
	closed bool
}

// Handle cancels one scheduled task. A zero Handle is valid and inert.
type Handle struct {
	s   *Scheduler
	key string
	id  uint64
}

// New creates a Scheduler. A nil clock uses the real clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock: clock,
		tasks: make(map[string]*task),
	}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// Now is shorthand for s.Clock().Now().
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Schedule runs fn after d under key, replacing any task already pending
// under the same key. Scheduling on a closed scheduler is a no-op.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || fn == nil {
		return Handle{}
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
		delete(s.tasks, key)
	}
	if d < 0 {
		d = 0
	}

	s.nextID++
	id := s.nextID
	t := &task{id: id}
	s.tasks[key] = t
	t.timer = s.clock.AfterFunc(d, func() {
		if !s.claim(key, id) {
			return
		}
		fn()
	})
	return Handle{s: s, key: key, id: id}
}

// claim removes the task if it is still the current one for key.
func (s *Scheduler) claim(key string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[key]
	if !ok || current.id != id {
		return false
	}
	delete(s.tasks, key)
	return true
}

// Cancel stops the task pending under key.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending reports whether a task is scheduled under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// CancelAll stops every pending task and returns how many were cancelled.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	return n
}

// Close cancels everything and rejects future tasks.
func (s *Scheduler) Close() {
	s.CancelAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Cancel stops the task if it is still the one scheduled under its key.
func (h Handle) Cancel() bool {
	if h.s == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	t, ok := h.s.tasks[h.key]
	if !ok || t.id != h.id {
		return false
	}
	t.timer.Stop()
	delete(h.s.tasks, h.key)
	return true
}

// Active reports whether the task is still pending.
func (h Handle) Active() bool {
	if h.s == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	t, ok := h.s.tasks[h.key]
	return ok && t.id == h.id
}
