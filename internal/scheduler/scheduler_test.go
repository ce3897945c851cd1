package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)

func TestScheduleRunsAfterDelay(t *testing.T) {
	clock := NewFakeClock(epoch)
	s := New(clock)

	ran := 0
	s.Schedule("k", time.Second, func() { ran++ })
	clock.Advance(999 * time.Millisecond)
	require.Equal(t, 0, ran)
	require.True(t, s.Pending("k"))

	clock.Advance(time.Millisecond)
	require.Equal(t, 1, ran)
	require.False(t, s.Pending("k"))
}

func TestScheduleReplacesSameKey(t *testing.T) {
	clock := NewFakeClock(epoch)
	s := New(clock)

	var fired []string
	s.Schedule("k", time.Second, func() { fired = append(fired, "first") })
	clock.Advance(500 * time.Millisecond)
	s.Schedule("k", time.Second, func() { fired = append(fired, "second") })

	clock.Advance(600 * time.Millisecond)
	require.Empty(t, fired)
	clock.Advance(400 * time.Millisecond)
	require.Equal(t, []string{"second"}, fired)
}

func TestHandleCancelOnlyAffectsItsOwnTask(t *testing.T) {
	clock := NewFakeClock(epoch)
	s := New(clock)

	ran := 0
	old := s.Schedule("k", time.Second, func() {})
	s.Schedule("k", time.Second, func() { ran++ })
	require.False(t, old.Cancel())
	require.False(t, old.Active())

	clock.Advance(time.Second)
	require.Equal(t, 1, ran)
}

func TestCancelAllTearsDownEverything(t *testing.T) {
	clock := NewFakeClock(epoch)
	s := New(clock)

	ran := 0
	s.Schedule("a", time.Second, func() { ran++ })
	s.Schedule("b", 2*time.Second, func() { ran++ })
	require.Equal(t, 2, s.Len())

	require.Equal(t, 2, s.CancelAll())
	clock.Advance(time.Minute)
	require.Equal(t, 0, ran)
	require.Equal(t, 0, clock.Pending())
}

func TestClosedSchedulerRejectsTasks(t *testing.T) {
	clock := NewFakeClock(epoch)
	s := New(clock)
	s.Close()

	h := s.Schedule("k", time.Second, func() { t.Fatal("should not run") })
	require.False(t, h.Active())
	clock.Advance(time.Minute)
}

func TestFakeClockFiresChainedTimers(t *testing.T) {
	clock := NewFakeClock(epoch)
	var at []time.Duration
	clock.AfterFunc(time.Second, func() {
		at = append(at, clock.Now().Sub(epoch))
		clock.AfterFunc(time.Second, func() {
			at = append(at, clock.Now().Sub(epoch))
		})
	})
	clock.Advance(5 * time.Second)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, at)
	require.Equal(t, epoch.Add(5*time.Second), clock.Now())
}

func TestRealClockSchedules(t *testing.T) {
	s := New(nil)
	done := make(chan struct{})
	s.Schedule("k", time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}
