package bridge

import (
	"log/slog"
	"sync"
	"time"
)

// Lifecycle implements the state-machine half of a Bridge: current
// state, last-ready timestamp, and fan-out of transitions to
// subscribers. Concrete bridges embed it and call transition().
type Lifecycle struct {
	mu          sync.Mutex
	state       State
	lastReadyAt time.Time
	subs        []chan State
	logger      *slog.Logger
}

// NewLifecycle creates a lifecycle in StateDisconnected.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{state: StateDisconnected, logger: logger}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastReadyAt returns when the bridge last became Ready (zero if never).
func (l *Lifecycle) LastReadyAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReadyAt
}

// Subscribe returns a new transition channel. The buffer absorbs bursts
// of transitions; if a subscriber falls further behind than that, the
// oldest transition is dropped — only the latest state matters to a
// drain trigger.
func (l *Lifecycle) Subscribe() <-chan State {
	ch := make(chan State, 16)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// Transition moves to next and notifies subscribers. No-op when the
// state is unchanged.
func (l *Lifecycle) Transition(next State) {
	l.mu.Lock()
	if l.state == next {
		l.mu.Unlock()
		return
	}
	prev := l.state
	l.state = next
	if next == StateReady {
		l.lastReadyAt = time.Now()
	}
	subs := make([]chan State, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	l.logger.Info("bridge: state", "from", prev, "to", next)
	for _, ch := range subs {
		select {
		case ch <- next:
		default:
			// Drop the oldest buffered transition to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}
