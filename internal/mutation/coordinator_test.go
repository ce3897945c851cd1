package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/models"
)

type memState struct {
	mu     sync.Mutex
	values map[string]bool
	writes int
}

func newMemState() *memState {
	return &memState{values: make(map[string]bool)}
}

func (s *memState) Get(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[id]
}

func (s *memState) Set(id string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = v
	s.writes++
	return nil
}

// gate is a remote call that blocks until the test releases it.
type gate struct {
	release chan error
}

func newGate() *gate {
	return &gate{release: make(chan error, 1)}
}

func (g *gate) remote(ctx context.Context) error {
	select {
	case err := <-g.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitDone(t *testing.T, intent *Intent[bool]) {
	t.Helper()
	select {
	case <-intent.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("intent %s did not resolve", intent.ID)
	}
}

func TestApplyIsLocalFirst(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	g := newGate()
	intent := c.Apply(context.Background(), "m1", models.MutationStar, true, g.remote)
	require.True(t, state.Get("m1"))
	require.Equal(t, models.IntentPending, intent.Status())
	require.False(t, intent.Prior)
	require.True(t, c.Pending("m1"))

	g.release <- nil
	waitDone(t, intent)
	require.Equal(t, models.IntentConfirmed, intent.Status())
	require.False(t, intent.Superseded())
	require.True(t, state.Get("m1"))
	require.False(t, c.Pending("m1"))
}

func TestFailureRevertsToPrior(t *testing.T) {
	state := newMemState()
	var results []Result
	var mu sync.Mutex
	c := New[bool](state, Config{OnResolved: func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}})
	defer c.Close()

	boom := errors.New("gateway unavailable")
	intent := c.Apply(context.Background(), "m1", models.MutationStar, true, func(context.Context) error { return boom })
	waitDone(t, intent)

	require.Equal(t, models.IntentRolledBack, intent.Status())
	require.ErrorIs(t, intent.Err(), boom)
	require.False(t, state.Get("m1"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.True(t, results[0].Reverted)
	require.Equal(t, models.MutationStar, results[0].Kind)
}

func TestStaleSuccessDoesNotClobberNewerIntent(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	first, second := newGate(), newGate()
	a := c.Apply(context.Background(), "m1", models.MutationStar, true, first.remote)
	b := c.Apply(context.Background(), "m1", models.MutationUnstar, false, second.remote)
	require.Less(t, a.Sequence, b.Sequence)
	require.False(t, state.Get("m1"))

	first.release <- nil
	waitDone(t, a)
	require.Equal(t, models.IntentConfirmed, a.Status())
	require.True(t, a.Superseded())
	require.False(t, state.Get("m1"))

	second.release <- nil
	waitDone(t, b)
	require.Equal(t, models.IntentConfirmed, b.Status())
	require.False(t, b.Superseded())
	require.False(t, state.Get("m1"))
}

func TestStaleFailureDoesNotRevert(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	first, second := newGate(), newGate()
	a := c.Apply(context.Background(), "m1", models.MutationStar, true, first.remote)
	b := c.Apply(context.Background(), "m1", models.MutationUnstar, false, second.remote)

	first.release <- errors.New("late failure")
	waitDone(t, a)
	require.Equal(t, models.IntentRolledBack, a.Status())
	require.True(t, a.Superseded())
	require.False(t, state.Get("m1"))

	second.release <- errors.New("also failed")
	waitDone(t, b)
	require.Equal(t, models.IntentRolledBack, b.Status())
	// b was the newest live intent, so its prior (a's desired value) returns.
	require.True(t, state.Get("m1"))
}

func TestNewestFailureRevertsWhileOlderStillPending(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	first, second := newGate(), newGate()
	a := c.Apply(context.Background(), "m1", models.MutationStar, true, first.remote)
	b := c.Apply(context.Background(), "m1", models.MutationUnstar, false, second.remote)

	second.release <- errors.New("rejected")
	waitDone(t, b)
	require.True(t, state.Get("m1"))

	first.release <- errors.New("rejected")
	waitDone(t, a)
	require.False(t, state.Get("m1"))
	require.Zero(t, c.PendingCount())
}

func TestTimeoutRollsBack(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{Timeout: 20 * time.Millisecond})
	defer c.Close()

	g := newGate()
	intent := c.Apply(context.Background(), "m1", models.MutationStar, true, g.remote)
	waitDone(t, intent)

	require.Equal(t, models.IntentRolledBack, intent.Status())
	require.ErrorIs(t, intent.Err(), ErrTimeout)
	require.False(t, state.Get("m1"))
}

func TestDiscardAllEndsPendingWithoutRevert(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	g1, g2 := newGate(), newGate()
	a := c.Apply(context.Background(), "m1", models.MutationStar, true, g1.remote)
	b := c.Apply(context.Background(), "m2", models.MutationStar, true, g2.remote)

	require.Equal(t, 2, c.DiscardAll())
	for _, intent := range []*Intent[bool]{a, b} {
		waitDone(t, intent)
		require.Equal(t, models.IntentRolledBack, intent.Status())
		require.ErrorIs(t, intent.Err(), ErrDiscarded)
	}
	require.True(t, state.Get("m1"))
	require.True(t, state.Get("m2"))
	require.Zero(t, c.PendingCount())
}

func TestApplyAfterCloseIsRejected(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	c.Close()

	intent := c.Apply(context.Background(), "m1", models.MutationStar, true, nil)
	require.Equal(t, models.IntentRolledBack, intent.Status())
	require.ErrorIs(t, intent.Err(), ErrClosed)
	require.False(t, state.Get("m1"))
	require.Zero(t, state.writes)
}

func TestSequencesAreMonotonicPerSubject(t *testing.T) {
	state := newMemState()
	c := New[bool](state, Config{})
	defer c.Close()

	var last uint64
	for i := 0; i < 5; i++ {
		intent := c.Apply(context.Background(), "m1", models.MutationStar, i%2 == 0, nil)
		waitDone(t, intent)
		require.Greater(t, intent.Sequence, last)
		last = intent.Sequence
	}
	other := c.Apply(context.Background(), "m2", models.MutationStar, true, nil)
	waitDone(t, other)
	require.Equal(t, uint64(1), other.Sequence)
}
