package history

import (
	"sync"
	"time"

	"github.com/tOgg1/gatechat/internal/scheduler"
)

const (
	// DefaultBottomThreshold is the distance from the bottom, in rows or
	// pixels, under which the view counts as pinned to the bottom.
	DefaultBottomThreshold = 80
	// DefaultScrollIdle is how long after the last scroll event the user
	// stops counting as scrolling.
	DefaultScrollIdle = 2 * time.Second

	scrollIdleTask = "autoscroll.idle"
)

// ScrollState is the auto-scroll state.
type ScrollState int

const (
	AtBottom ScrollState = iota
	ScrolledUp
	UserScrolling
)

func (s ScrollState) String() string {
	switch s {
	case AtBottom:
		return "at_bottom"
	case ScrolledUp:
		return "scrolled_up"
	case UserScrolling:
		return "user_scrolling"
	default:
		return "unknown"
	}
}

// Viewport is the renderer's view of the scroll container.
type Viewport struct {
	// Offset is the distance from the top edge.
	Offset int
	// BottomDistance is the distance from the bottom edge.
	BottomDistance int
}

// Action tells the renderer what to do after an event.
type Action struct {
	ScrollToBottom bool
	ShowAffordance bool
	ExpandHistory  bool
}

// AutoScroll is the scroll state machine.
type AutoScroll struct {
	threshold int
	idle      time.Duration
	sched     *scheduler.Scheduler

	mu         sync.Mutex
	state      ScrollState
	viewport   Viewport
	affordance bool
	pendingNew int
	onIdle     func()
}

// NewAutoScroll creates a controller whose idle timer runs on sched.
func NewAutoScroll(sched *scheduler.Scheduler, threshold int, idle time.Duration) *AutoScroll {
	if threshold <= 0 {
		threshold = DefaultBottomThreshold
	}
	if idle <= 0 {
		idle = DefaultScrollIdle
	}
	return &AutoScroll{threshold: threshold, idle: idle, sched: sched}
}

// OnIdle registers a callback fired when a scroll burst settles.
func (a *AutoScroll) OnIdle(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onIdle = fn
}

// Reset returns to AtBottom with no affordance.
func (a *AutoScroll) Reset() {
	a.sched.Cancel(scrollIdleTask)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AtBottom
	a.viewport = Viewport{}
	a.affordance = false
	a.pendingNew = 0
}

// State returns the current state.
func (a *AutoScroll) State() ScrollState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsUserScrolling reports whether a scroll burst is in progress.
func (a *AutoScroll) IsUserScrolling() bool {
	return a.State() == UserScrolling
}

// ShowAffordance reports whether the "new messages" affordance is raised.
func (a *AutoScroll) ShowAffordance() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.affordance
}

// PendingNew returns how many messages arrived while the affordance was up.
func (a *AutoScroll) PendingNew() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingNew
}

// SetViewport records a layout change that was not caused by the user.
func (a *AutoScroll) SetViewport(vp Viewport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewport = vp
	if a.state != UserScrolling {
		a.state = a.restingStateLocked()
	}
}

// OnScroll handles a user scroll event. canExpand reports whether the
// history window still hides older messages.
func (a *AutoScroll) OnScroll(vp Viewport, canExpand bool) Action {
	a.mu.Lock()
	a.viewport = vp
	a.state = UserScrolling
	if a.nearBottomLocked() {
		a.affordance = false
		a.pendingNew = 0
	}
	a.mu.Unlock()

	a.sched.Schedule(scrollIdleTask, a.idle, a.settle)

	return Action{ExpandHistory: vp.Offset <= 0 && canExpand}
}

func (a *AutoScroll) settle() {
	a.mu.Lock()
	if a.state == UserScrolling {
		a.state = a.restingStateLocked()
		if a.state == AtBottom {
			a.affordance = false
			a.pendingNew = 0
		}
	}
	fn := a.onIdle
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnMessageAppended decides how to react to a new message at the bottom.
func (a *AutoScroll) OnMessageAppended() Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != UserScrolling && a.nearBottomLocked() {
		a.state = AtBottom
		a.affordance = false
		a.pendingNew = 0
		return Action{ScrollToBottom: true}
	}
	if a.state != UserScrolling {
		a.state = ScrolledUp
	}
	a.affordance = true
	a.pendingNew++
	return Action{ShowAffordance: true}
}

// JumpToBottom handles a tap on the affordance.
func (a *AutoScroll) JumpToBottom() Action {
	a.sched.Cancel(scrollIdleTask)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = AtBottom
	a.viewport.BottomDistance = 0
	a.affordance = false
	a.pendingNew = 0
	return Action{ScrollToBottom: true}
}

func (a *AutoScroll) nearBottomLocked() bool {
	return a.viewport.BottomDistance < a.threshold
}

func (a *AutoScroll) restingStateLocked() ScrollState {
	if a.nearBottomLocked() {
		return AtBottom
	}
	return ScrolledUp
}
