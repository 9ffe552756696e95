package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ApplyFunc lets tests and headless deployments script the render
// surface's response to an operation. Return nil to ack.
type ApplyFunc func(ctx context.Context, op Operation) error

// LoopbackOption configures a Loopback bridge.
type LoopbackOption func(*Loopback)

// WithApply scripts the response to each Apply. Default: ack everything.
func WithApply(fn ApplyFunc) LoopbackOption {
	return func(b *Loopback) { b.apply = fn }
}

// WithManualReady stops Connect at Connecting; the caller drives the
// Ready transition with MarkReady. Used to exercise the
// enqueue-while-connecting path.
func WithManualReady() LoopbackOption {
	return func(b *Loopback) { b.manual = true }
}

// WithLoopbackLogger sets a custom logger.
func WithLoopbackLogger(l *slog.Logger) LoopbackOption {
	return func(b *Loopback) { b.lc = NewLifecycle(l) }
}

// Loopback is an in-memory Bridge. It records every applied operation
// in order, which is how the delivery-order and exactly-once properties
// are asserted in tests. It also serves as the render target when
// canvasd runs without a browser.
type Loopback struct {
	lc     *Lifecycle
	apply  ApplyFunc
	manual bool

	mu      sync.Mutex
	applied []Operation
}

// NewLoopback creates a loopback bridge in StateDisconnected.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	b := &Loopback{lc: NewLifecycle(nil)}
	for _, o := range opts {
		o(b)
	}
	if b.lc == nil {
		b.lc = NewLifecycle(nil)
	}
	return b
}

// Connect transitions to Connecting and, unless manual readiness is
// configured, straight on to Ready.
func (b *Loopback) Connect(ctx context.Context) error {
	b.lc.Transition(StateConnecting)
	if !b.manual {
		b.lc.Transition(StateReady)
	}
	return nil
}

// MarkReady completes a manual connect.
func (b *Loopback) MarkReady() { b.lc.Transition(StateReady) }

// Drop simulates a lost connection.
func (b *Loopback) Drop() { b.lc.Transition(StateDisconnected) }

// Apply records the operation and runs the scripted response.
func (b *Loopback) Apply(ctx context.Context, op Operation) error {
	if b.lc.State() != StateReady {
		return ErrNotReady
	}
	if b.apply != nil {
		if err := b.apply(ctx, op); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.applied = append(b.applied, op)
	b.mu.Unlock()
	return nil
}

// Disconnect transitions to Disconnected.
func (b *Loopback) Disconnect() error {
	b.lc.Transition(StateDisconnected)
	return nil
}

// State returns the lifecycle state.
func (b *Loopback) State() State { return b.lc.State() }

// LastReadyAt returns when the bridge last became Ready.
func (b *Loopback) LastReadyAt() time.Time { return b.lc.LastReadyAt() }

// Subscribe returns a lifecycle transition channel.
func (b *Loopback) Subscribe() <-chan State { return b.lc.Subscribe() }

// Applied returns a copy of all acked operations in delivery order.
func (b *Loopback) Applied() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Operation, len(b.applied))
	copy(out, b.applied)
	return out
}
