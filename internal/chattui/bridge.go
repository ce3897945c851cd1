package chattui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type sessionChangedMsg struct{}

// Bridge forwards session change notifications to a running program.
// Notify never blocks; bursts collapse into one redraw.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	pending chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewBridge() *Bridge {
	b := &Bridge{
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.forward()
	return b
}

// Notify is suitable as session.Options.OnChange.
func (b *Bridge) Notify() {
	select {
	case b.pending <- struct{}{}:
	default:
	}
}

func (b *Bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
	b.Notify()
}

func (b *Bridge) forward() {
	for {
		select {
		case <-b.done:
			return
		case <-b.pending:
			b.mu.Lock()
			p := b.program
			b.mu.Unlock()
			if p != nil {
				p.Send(sessionChangedMsg{})
			}
		}
	}
}

// Close stops forwarding.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
