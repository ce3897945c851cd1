package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/typing"
)

const (
	signalQueueSize = 16
	signalTimeout   = 5 * time.Second
)

type typingSignal struct {
	chatID string
	start  bool
}

// signalQueue delivers typing signals on one background goroutine, in
// order, so the debouncer never waits on the network.
type signalQueue struct {
	target typing.Signaler
	logger zerolog.Logger

	ch       chan typingSignal
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func newSignalQueue(target typing.Signaler, logger zerolog.Logger) *signalQueue {
	q := &signalQueue{
		target: target,
		logger: logger,
		ch:     make(chan typingSignal, signalQueueSize),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *signalQueue) StartTyping(_ context.Context, chatID string) error {
	q.enqueue(typingSignal{chatID: chatID, start: true})
	return nil
}

func (q *signalQueue) StopTyping(_ context.Context, chatID string) error {
	q.enqueue(typingSignal{chatID: chatID})
	return nil
}

func (q *signalQueue) enqueue(sig typingSignal) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return
	}
	select {
	case q.ch <- sig:
	default:
		q.logger.Debug().Str("chat", sig.chatID).Bool("start", sig.start).Msg("typing signal dropped")
	}
}

func (q *signalQueue) run() {
	defer close(q.done)
	for sig := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		var err error
		if sig.start {
			err = q.target.StartTyping(ctx, sig.chatID)
		} else {
			err = q.target.StopTyping(ctx, sig.chatID)
		}
		cancel()
		if err != nil {
			q.logger.Debug().Err(err).Str("chat", sig.chatID).Bool("start", sig.start).Msg("typing signal failed")
		}
	}
}

// stop drains queued signals and waits for the worker to exit.
func (q *signalQueue) stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.ch)
		q.mu.Unlock()
	})
	<-q.done
}
