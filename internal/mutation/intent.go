package mutation

import (
	"context"
	"sync"

	"github.com/tOgg1/gatechat/internal/models"
)

// Intent is one optimistic mutation of a subject.
type Intent[S comparable] struct {
	ID        string
	SubjectID string
	Kind      models.MutationKind
	Prior     S
	Desired   S
	Sequence  uint64

	mu         sync.Mutex
	status     models.IntentStatus
	err        error
	superseded bool
	done       chan struct{}
	cancel     context.CancelFunc
}

// Status returns the current status.
func (i *Intent[S]) Status() models.IntentStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Err returns the failure that rolled the intent back, if any.
func (i *Intent[S]) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Superseded reports whether a newer intent owned the subject when this one
// resolved.
func (i *Intent[S]) Superseded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.superseded
}

// Done is closed once the intent is terminal.
func (i *Intent[S]) Done() <-chan struct{} {
	return i.done
}

// Wait blocks until the intent is terminal or ctx ends.
func (i *Intent[S]) Wait(ctx context.Context) (models.IntentStatus, error) {
	select {
	case <-i.done:
		return i.Status(), i.Err()
	case <-ctx.Done():
		return i.Status(), ctx.Err()
	}
}

func (i *Intent[S]) finish(status models.IntentStatus, err error, superseded bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status.Terminal() {
		return
	}
	i.status = status
	i.err = err
	i.superseded = superseded
	close(i.done)
}
