// Package mutation applies local-first changes and reconciles them with the
// gateway's answer.
//
// Every intent gets a sequence number that is monotonic per subject. A
// response only moves local state when its intent is still the newest live
// intent for the subject, so a slow response can never clobber newer state.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/models"
)

// DefaultTimeout bounds how long an intent may stay pending.
const DefaultTimeout = 15 * time.Second

// Coordinator errors.
var (
	ErrDiscarded = errors.New("mutation discarded")
	ErrTimeout   = errors.New("mutation timed out")
	ErrClosed    = errors.New("coordinator closed")
)

// State is the local view of the mutated values. Set applies a value to the
// view and writes it through to the local write-ahead cache; an error only
// reports that the cache write failed.
type State[S comparable] interface {
	Get(subjectID string) S
	Set(subjectID string, value S) error
}

// RemoteFunc performs the gateway call for an intent.
type RemoteFunc func(ctx context.Context) error

// Result describes how an intent ended.
type Result struct {
	IntentID   string
	SubjectID  string
	Kind       models.MutationKind
	Sequence   uint64
	Status     models.IntentStatus
	Superseded bool
	Reverted   bool
	Err        error
}

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds each remote call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// OnResolved is called once per intent after it reaches a terminal state.
	OnResolved func(Result)
	Logger     *zerolog.Logger
}

type subjectState[S comparable] struct {
	nextSeq       uint64
	lastConfirmed uint64
	pending       map[uint64]*Intent[S]
}

// Coordinator runs optimistic mutations over a State.
type Coordinator[S comparable] struct {
	state      State[S]
	timeout    time.Duration
	onResolved func(Result)
	logger     zerolog.Logger

	mu       sync.Mutex
	subjects map[string]*subjectState[S]
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Coordinator over state.
func New[S comparable](state State[S], cfg Config) *Coordinator[S] {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := logging.Component("mutation")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Coordinator[S]{
		state:      state,
		timeout:    timeout,
		onResolved: cfg.OnResolved,
		logger:     logger,
		subjects:   make(map[string]*subjectState[S]),
	}
}

// Apply snapshots the prior value, applies desired locally, and issues
// remote in the background. The returned intent is pending until remote
// returns, the timeout fires, or DiscardAll runs.
func (c *Coordinator[S]) Apply(ctx context.Context, subjectID string, kind models.MutationKind, desired S, remote RemoteFunc) *Intent[S] {
	intent := &Intent[S]{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      kind,
		Desired:   desired,
		status:    models.IntentPending,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		intent.Prior = desired
		intent.finish(models.IntentRolledBack, ErrClosed, false)
		return intent
	}
	subject := c.subjectLocked(subjectID)
	subject.nextSeq++
	intent.Sequence = subject.nextSeq
	intent.Prior = c.state.Get(subjectID)
	subject.pending[intent.Sequence] = intent

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	intent.cancel = cancel
	if err := c.state.Set(subjectID, desired); err != nil {
		c.logger.Warn().Err(err).Str("subject", subjectID).Msg("write-ahead cache update failed")
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug().
		Str("intent", intent.ID).
		Str("subject", subjectID).
		Str("kind", string(kind)).
		Uint64("seq", intent.Sequence).
		Msg("mutation applied")

	go func() {
		defer c.wg.Done()
		defer cancel()
		var err error
		if remote != nil {
			err = remote(reqCtx)
		}
		if err != nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
		}
		c.resolve(intent, err)
	}()

	return intent
}

func (c *Coordinator[S]) subjectLocked(subjectID string) *subjectState[S] {
	subject, ok := c.subjects[subjectID]
	if !ok {
		subject = &subjectState[S]{pending: make(map[uint64]*Intent[S])}
		c.subjects[subjectID] = subject
	}
	return subject
}

// isLatestLocked reports whether seq is the newest live sequence: no other
// pending intent and no confirmed intent is newer.
func (s *subjectState[S]) isLatestLocked(seq uint64) bool {
	if s.lastConfirmed > seq {
		return false
	}
	for other := range s.pending {
		if other > seq {
			return false
		}
	}
	return true
}

func (c *Coordinator[S]) resolve(intent *Intent[S], err error) {
	c.mu.Lock()
	subject, ok := c.subjects[intent.SubjectID]
	if !ok || subject.pending[intent.Sequence] != intent {
		// Already resolved by DiscardAll.
		c.mu.Unlock()
		return
	}
	delete(subject.pending, intent.Sequence)
	latest := subject.isLatestLocked(intent.Sequence)

	result := Result{
		IntentID:  intent.ID,
		SubjectID: intent.SubjectID,
		Kind:      intent.Kind,
		Sequence:  intent.Sequence,
	}
	if err == nil {
		if intent.Sequence > subject.lastConfirmed {
			subject.lastConfirmed = intent.Sequence
		}
		result.Status = models.IntentConfirmed
		result.Superseded = !latest
	} else {
		result.Status = models.IntentRolledBack
		result.Err = err
		result.Superseded = !latest
		if latest {
			if setErr := c.state.Set(intent.SubjectID, intent.Prior); setErr != nil {
				c.logger.Warn().Err(setErr).Str("subject", intent.SubjectID).Msg("write-ahead cache rollback failed")
			}
			result.Reverted = true
		}
	}
	c.mu.Unlock()

	intent.finish(result.Status, result.Err, result.Superseded)
	c.log(result)
	if c.onResolved != nil {
		c.onResolved(result)
	}
}

// DiscardAll abandons every pending intent: requests are cancelled and the
// intents end rolled back with ErrDiscarded. Local state is left as is.
func (c *Coordinator[S]) DiscardAll() int {
	c.mu.Lock()
	var discarded []*Intent[S]
	for _, subject := range c.subjects {
		for seq, intent := range subject.pending {
			delete(subject.pending, seq)
			discarded = append(discarded, intent)
		}
	}
	c.mu.Unlock()

	for _, intent := range discarded {
		if intent.cancel != nil {
			intent.cancel()
		}
		intent.finish(models.IntentRolledBack, ErrDiscarded, false)
		result := Result{
			IntentID:  intent.ID,
			SubjectID: intent.SubjectID,
			Kind:      intent.Kind,
			Sequence:  intent.Sequence,
			Status:    models.IntentRolledBack,
			Err:       ErrDiscarded,
		}
		c.log(result)
		if c.onResolved != nil {
			c.onResolved(result)
		}
	}
	return len(discarded)
}

// Pending reports whether subjectID has an unresolved intent.
func (c *Coordinator[S]) Pending(subjectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	subject, ok := c.subjects[subjectID]
	return ok && len(subject.pending) > 0
}

// PendingCount returns the number of unresolved intents.
func (c *Coordinator[S]) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, subject := range c.subjects {
		n += len(subject.pending)
	}
	return n
}

// Close discards pending intents, waits for their goroutines, and rejects
// further Apply calls.
func (c *Coordinator[S]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.DiscardAll()
	c.wg.Wait()
}

func (c *Coordinator[S]) log(result Result) {
	event := c.logger.Info()
	if result.Err != nil && !errors.Is(result.Err, ErrDiscarded) {
		event = c.logger.Warn().Err(result.Err)
	}
	event.
		Str("intent", result.IntentID).
		Str("subject", result.SubjectID).
		Str("kind", string(result.Kind)).
		Uint64("seq", result.Sequence).
		Str("status", string(result.Status)).
		Bool("superseded", result.Superseded).
		Bool("reverted", result.Reverted).
		Msg("mutation resolved")
}
