package session

import (
	"context"
	"sync"
	"time"

	"github.com/tOgg1/gatechat/internal/store"
)

const storeTimeout = 2 * time.Second

// view holds the values owned by the mutation coordinators: the starred
// flag and body of each message of the open chat. It has its own lock and
// never calls out, so coordinators may write it while the session is locked.
type view struct {
	store *store.Store

	mu      sync.Mutex
	chatID  string
	starred map[string]bool
	bodies  map[string]string
}

func newView(st *store.Store) *view {
	return &view{
		store:   st,
		starred: make(map[string]bool),
		bodies:  make(map[string]string),
	}
}

func (v *view) reset(chatID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chatID = chatID
	v.starred = make(map[string]bool)
	v.bodies = make(map[string]string)
}

// add registers a message body. Existing entries are kept.
func (v *view) add(id, body string, starred bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.bodies[id]; ok {
		return
	}
	v.bodies[id] = body
	if starred {
		v.starred[id] = true
	}
}

func (v *view) rename(from, to string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	body, ok := v.bodies[from]
	if !ok {
		return
	}
	delete(v.bodies, from)
	v.bodies[to] = body
	if v.starred[from] {
		delete(v.starred, from)
		v.starred[to] = true
	}
}

func (v *view) isStarred(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.starred[id]
}

func (v *view) body(id string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bodies[id]
}

// starredIDs returns the starred ids of the open chat.
func (v *view) starredIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.starred))
	for id, ok := range v.starred {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// overwriteStarred sets a reconciled value without touching the store.
func (v *view) overwriteStarred(id string, starred bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.bodies[id]; !ok {
		return
	}
	if starred {
		v.starred[id] = true
	} else {
		delete(v.starred, id)
	}
}

// starState adapts the view to mutation.State[bool]. Set writes through to
// the starred cache of the open chat.
type starState struct{ v *view }

func (s starState) Get(id string) bool { return s.v.isStarred(id) }

func (s starState) Set(id string, starred bool) error {
	s.v.mu.Lock()
	if _, ok := s.v.bodies[id]; !ok {
		s.v.mu.Unlock()
		return nil
	}
	if starred {
		s.v.starred[id] = true
	} else {
		delete(s.v.starred, id)
	}
	chatID := s.v.chatID
	s.v.mu.Unlock()

	if s.v.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.v.store.SetStarred(ctx, chatID, id, starred)
}

// bodyState adapts the view to mutation.State[string].
type bodyState struct{ v *view }

func (s bodyState) Get(id string) string { return s.v.body(id) }

func (s bodyState) Set(id, body string) error {
	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if _, ok := s.v.bodies[id]; ok {
		s.v.bodies[id] = body
	}
	return nil
}
