// Package typing turns keystrokes into start/stop typing signals.
package typing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/scheduler"
)

// DefaultIdle is the quiet period after the last keystroke before stop is sent.
const DefaultIdle = 2 * time.Second

const stopTask = "typing.stop"

// Signaler delivers typing signals. Delivery is fire-and-forget: errors are
// logged and otherwise ignored.
type Signaler interface {
	StartTyping(ctx context.Context, chatID string) error
	StopTyping(ctx context.Context, chatID string) error
}

// Debouncer is the Idle/Typing state machine for one chat.
type Debouncer struct {
	signaler Signaler
	sched    *scheduler.Scheduler
	idle     time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	chatID string
	state  models.TypingState
}

// New creates a Debouncer whose stop timer runs on sched.
func New(signaler Signaler, sched *scheduler.Scheduler, idle time.Duration) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{
		signaler: signaler,
		sched:    sched,
		idle:     idle,
		logger:   logging.Component("typing"),
	}
}

// Reset switches to chatID in the Idle state without emitting anything.
func (d *Debouncer) Reset(chatID string) {
	d.sched.Cancel(stopTask)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chatID = chatID
	d.state = models.TypingState{}
}

// State returns a snapshot of the typing state.
func (d *Debouncer) State() models.TypingState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// InputChanged handles a change of the composer text. Non-empty input is a
// keystroke; empty input stops typing immediately.
func (d *Debouncer) InputChanged(text string) {
	if strings.TrimSpace(text) == "" {
		d.Stop()
		return
	}
	d.Keystroke()
}

// Keystroke emits start on the Idle to Typing transition and reschedules the
// stop signal.
func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	chatID := d.chatID
	if chatID == "" {
		d.mu.Unlock()
		return
	}
	start := !d.state.IsTyping
	d.state.IsTyping = true
	d.state.LastKeystrokeAt = d.sched.Now()
	d.state.StopPending = true
	d.mu.Unlock()

	d.sched.Schedule(stopTask, d.idle, func() { d.emitStop(chatID) })
	if start {
		d.send(chatID, true)
	}
}

// Stop cancels the pending timer and emits stop now if typing.
func (d *Debouncer) Stop() {
	d.sched.Cancel(stopTask)
	d.mu.Lock()
	chatID := d.chatID
	typing := d.state.IsTyping
	d.mu.Unlock()
	if typing {
		d.emitStop(chatID)
	}
}

func (d *Debouncer) emitStop(chatID string) {
	d.mu.Lock()
	if d.chatID != chatID || !d.state.IsTyping {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.send(chatID, false)

	d.mu.Lock()
	if d.chatID == chatID {
		d.state.IsTyping = false
		d.state.StopPending = false
	}
	d.mu.Unlock()
}

func (d *Debouncer) send(chatID string, start bool) {
	if d.signaler == nil {
		return
	}
	var err error
	if start {
		err = d.signaler.StartTyping(context.Background(), chatID)
	} else {
		err = d.signaler.StopTyping(context.Background(), chatID)
	}
	if err != nil {
		d.logger.Debug().Err(err).Str("chat", chatID).Bool("start", start).Msg("typing signal failed")
	}
}
