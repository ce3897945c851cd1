package typing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/scheduler"
)

type signal struct {
	chatID string
	start  bool
	at     time.Time
}

type recordingSignaler struct {
	clock   *scheduler.FakeClock
	mu      sync.Mutex
	signals []signal
	err     error
}

func (r *recordingSignaler) StartTyping(_ context.Context, chatID string) error {
	return r.record(chatID, true)
}

func (r *recordingSignaler) StopTyping(_ context.Context, chatID string) error {
	return r.record(chatID, false)
}

func (r *recordingSignaler) record(chatID string, start bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{chatID: chatID, start: start, at: r.clock.Now()})
	return r.err
}

func (r *recordingSignaler) count(start bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.start == start {
			n++
		}
	}
	return n
}

func newTestDebouncer() (*Debouncer, *recordingSignaler, *scheduler.FakeClock) {
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC))
	rec := &recordingSignaler{clock: clock}
	d := New(rec, scheduler.New(clock), DefaultIdle)
	d.Reset("chat-1")
	return d, rec, clock
}

func TestThreeKeystrokesThenSilence(t *testing.T) {
	d, rec, clock := newTestDebouncer()
	begin := clock.Now()

	d.InputChanged("h")
	clock.Advance(400 * time.Millisecond)
	d.InputChanged("he")
	clock.Advance(450 * time.Millisecond)
	d.InputChanged("hey")
	last := clock.Now()

	require.Equal(t, 1, rec.count(true))
	require.Zero(t, rec.count(false))
	require.True(t, d.State().IsTyping)

	clock.Advance(2100 * time.Millisecond)

	require.Equal(t, 1, rec.count(true))
	require.Equal(t, 1, rec.count(false))
	require.False(t, d.State().IsTyping)
	require.Equal(t, begin, rec.signals[0].at)
	require.Equal(t, last.Add(DefaultIdle), rec.signals[1].at)
}

func TestClearingInputStopsImmediately(t *testing.T) {
	d, rec, clock := newTestDebouncer()
	d.InputChanged("draft")
	clock.Advance(300 * time.Millisecond)

	d.InputChanged("")
	require.Equal(t, 1, rec.count(false))
	require.False(t, d.State().IsTyping)
	require.False(t, d.State().StopPending)

	clock.Advance(5 * time.Second)
	require.Equal(t, 1, rec.count(false))
}

func TestClearingIdleInputEmitsNothing(t *testing.T) {
	d, rec, _ := newTestDebouncer()
	d.InputChanged("   ")
	require.Empty(t, rec.signals)
}

func TestTypingAgainAfterStopStartsAgain(t *testing.T) {
	d, rec, clock := newTestDebouncer()
	d.InputChanged("a")
	clock.Advance(DefaultIdle)
	d.InputChanged("ab")
	require.Equal(t, 2, rec.count(true))
	require.Equal(t, 1, rec.count(false))
}

func TestResetDropsPendingStop(t *testing.T) {
	d, rec, clock := newTestDebouncer()
	d.InputChanged("a")
	d.Reset("chat-2")
	clock.Advance(DefaultIdle * 2)

	require.Zero(t, rec.count(false))
	require.False(t, d.State().IsTyping)
}

func TestSignalErrorsAreIgnored(t *testing.T) {
	d, rec, clock := newTestDebouncer()
	rec.err = errors.New("gateway down")
	d.InputChanged("a")
	clock.Advance(DefaultIdle)
	require.False(t, d.State().IsTyping)
	require.Len(t, rec.signals, 2)
}

func TestNoChatNoSignals(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Now())
	rec := &recordingSignaler{clock: clock}
	d := New(rec, scheduler.New(clock), 0)
	d.InputChanged("hello")
	clock.Advance(time.Minute)
	require.Empty(t, rec.signals)
}
