// Package dispatch owns the operation queue and the single sequential
// drain loop that delivers accepted canvas mutations to the render
// surface bridge.
//
// Every accepted mutation becomes one idempotent Operation with a
// sequence number assigned exactly once, at enqueue time, under the
// dispatcher lock. Delivery is strictly one-at-a-time in ascending
// sequence order: the drain loop awaits each ack before sending the
// next, no matter how long an individual apply suspends.
//
// The drain loop is purely event-driven. It wakes on every enqueue and
// on every bridge Ready transition — the second trigger is the fix for
// the connect-time race where operations enqueued while the bridge is
// still Connecting would otherwise sit in the buffer forever. There is
// no polling tick: an enqueue against an idle loop and a Ready bridge
// is sent immediately, which subsumes a separate direct-dispatch fast
// path while keeping a single code path for bookkeeping.
//
// Queueing is unbounded. A configurable high watermark emits a
// backpressure warning; nothing is ever silently discarded.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/idgen"
)

// Status is the lifecycle state of an Operation inside the dispatcher.
type Status int

const (
	StatusPending Status = iota // queued, not yet sent
	StatusSent                  // sent, awaiting ack
	StatusAcked                 // delivered and acknowledged
	StatusFailed                // permanently rejected or retries exhausted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusAcked:
		return "acked"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrUnknownOperation is returned by Wait/Status for an ID the
// dispatcher has no (retained) record of.
var ErrUnknownOperation = errors.New("dispatch: unknown operation")

// Options configures a Dispatcher.
type Options struct {
	// ApplyTimeout bounds each individual bridge apply call.
	// Default: 10s.
	ApplyTimeout time.Duration
	// MaxAttempts limits deliveries per operation before it is marked
	// Failed. Only retryable errors (timeout, transient transport)
	// count; a permanent rejection fails on the first attempt.
	// Default: 5.
	MaxAttempts int
	// HighWatermark is the queue depth at which a backpressure warning
	// is logged. The queue itself stays unbounded. Default: 256.
	HighWatermark int
	// NewID generates operation IDs. Default: "op_"-prefixed UUIDv7.
	NewID idgen.Generator
	// OnAccept is called synchronously after a sequence number is
	// assigned, before delivery (the journal hook). It must not block
	// for long and must not call back into the dispatcher.
	OnAccept func(op bridge.Operation)
	// RetainTerminal caps how many terminal (acked/failed) operations
	// stay correlatable via Wait/Status. Default: 1024.
	RetainTerminal int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ApplyTimeout <= 0 {
		o.ApplyTimeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.HighWatermark <= 0 {
		o.HighWatermark = 256
	}
	if o.NewID == nil {
		o.NewID = idgen.Prefixed("op_", idgen.Default)
	}
	if o.RetainTerminal <= 0 {
		o.RetainTerminal = 1024
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time dispatcher counters for the admin surface.
type Stats struct {
	Depth    int    `json:"depth"`
	LastSeq  int64  `json:"last_seq"`
	Enqueued int64  `json:"enqueued"`
	Acked    int64  `json:"acked"`
	Failed   int64  `json:"failed"`
	Retries  int64  `json:"retries"`
	Bridge   string `json:"bridge"`
}

type entry struct {
	op       bridge.Operation
	status   Status
	attempts int
	err      error
	done     chan struct{}
}

// Dispatcher sequences delivery of operations to a Bridge. Create with
// New, start the drain loop with Run, feed it with Enqueue.
type Dispatcher struct {
	b      bridge.Bridge
	opts   Options
	states <-chan bridge.State
	wake   chan struct{}

	mu       sync.Mutex
	queue    []*entry          // non-terminal entries in seq order
	entries  map[string]*entry // by operation ID, incl. retained terminal
	terminal []string          // terminal IDs in finish order, for pruning
	lastSeq  int64
	enqueued int64
	acked    int64
	failed   int64
	retries  int64
}

// New creates a Dispatcher bound to a bridge. The bridge subscription
// is taken here, not in Run, so a Ready transition between New and Run
// is never lost.
func New(b bridge.Bridge, opts Options) *Dispatcher {
	opts.defaults()
	return &Dispatcher{
		b:       b,
		opts:    opts,
		states:  b.Subscribe(),
		wake:    make(chan struct{}, 1),
		entries: make(map[string]*entry),
	}
}

// Enqueue wraps an accepted mutation as an Operation, assigns the next
// sequence number, buffers it and wakes the drain loop. It never fails
// and never blocks on the bridge. Callers needing delivery confirmation
// follow up with Wait on the returned operation's ID.
func (d *Dispatcher) Enqueue(kind string, payload json.RawMessage) bridge.Operation {
	d.mu.Lock()
	d.lastSeq++
	op := bridge.Operation{
		ID:      d.opts.NewID(),
		Kind:    kind,
		Seq:     d.lastSeq,
		Payload: payload,
	}
	e := &entry{op: op, status: StatusPending, done: make(chan struct{})}
	d.queue = append(d.queue, e)
	d.entries[op.ID] = e
	d.enqueued++
	depth := len(d.queue)
	d.mu.Unlock()

	if depth >= d.opts.HighWatermark && depth%d.opts.HighWatermark == 0 {
		d.opts.Logger.Warn("dispatch: queue above high watermark",
			"depth", depth, "watermark", d.opts.HighWatermark, "bridge", d.b.State().String())
	}
	if d.opts.OnAccept != nil {
		d.opts.OnAccept(op)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return op
}

// Wait blocks until the operation reaches a terminal status or ctx
// expires. It returns nil for Acked and the delivery error for Failed.
func (d *Dispatcher) Wait(ctx context.Context, id string) error {
	d.mu.Lock()
	e, ok := d.entries[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current lifecycle status of an operation.
func (d *Dispatcher) Status(id string) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	return e.status, nil
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Depth:    len(d.queue),
		LastSeq:  d.lastSeq,
		Enqueued: d.enqueued,
		Acked:    d.acked,
		Failed:   d.failed,
		Retries:  d.retries,
		Bridge:   d.b.State().String(),
	}
}

// Run is the drain loop. It blocks until ctx is cancelled; on return
// all non-terminal operations are discarded (marked Failed with the
// context error) so that waiters unblock — a torn-down canvas instance
// has nothing left to replay into.
func (d *Dispatcher) Run(ctx context.Context) {
	log := d.opts.Logger
	log.Info("dispatch: drain loop started",
		"apply_timeout", d.opts.ApplyTimeout, "max_attempts", d.opts.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			d.discardAll(ctx.Err())
			log.Info("dispatch: drain loop stopped")
			return
		case st := <-d.states:
			if st == bridge.StateReady {
				d.drain(ctx)
			}
		case <-d.wake:
			d.drain(ctx)
		}
	}
}

// drain sends queued operations one at a time in sequence order. It
// checks the bridge's *current* state on every iteration: the caller
// may have woken it on a stale signal, and the bridge may drop mid-way.
func (d *Dispatcher) drain(ctx context.Context) {
	log := d.opts.Logger
	for {
		if ctx.Err() != nil {
			return
		}
		if d.b.State() != bridge.StateReady {
			return
		}

		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		e := d.queue[0]
		e.status = StatusSent
		e.attempts++
		op := e.op
		attempts := e.attempts
		d.mu.Unlock()

		applyCtx, cancel := context.WithTimeout(ctx, d.opts.ApplyTimeout)
		err := d.b.Apply(applyCtx, op)
		cancel()

		switch {
		case err == nil:
			d.finish(e, StatusAcked, nil)

		case isRejection(err):
			log.Warn("dispatch: operation rejected",
				"id", op.ID, "seq", op.Seq, "kind", op.Kind, "error", err)
			d.finish(e, StatusFailed, err)

		case errors.Is(err, bridge.ErrConnectionLost), errors.Is(err, bridge.ErrNotReady):
			// Back to Pending at the head of the queue; the next Ready
			// transition replays it with the same ID.
			log.Warn("dispatch: connection lost, operation returns to pending",
				"id", op.ID, "seq", op.Seq)
			d.mu.Lock()
			e.status = StatusPending
			d.mu.Unlock()
			return

		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// Teardown, not a delivery verdict. Run handles discard.
			d.mu.Lock()
			e.status = StatusPending
			d.mu.Unlock()
			return

		default:
			// Timeout or transient transport error: retry with the
			// same operation ID (idempotent) up to MaxAttempts.
			if attempts >= d.opts.MaxAttempts {
				log.Error("dispatch: retries exhausted",
					"id", op.ID, "seq", op.Seq, "attempts", attempts, "error", err)
				d.finish(e, StatusFailed, err)
				continue
			}
			d.mu.Lock()
			e.status = StatusPending
			d.retries++
			d.mu.Unlock()
			log.Warn("dispatch: apply failed, retrying",
				"id", op.ID, "seq", op.Seq, "attempt", attempts, "error", err)
		}
	}
}

func isRejection(err error) bool {
	var rej *bridge.RejectError
	return errors.As(err, &rej)
}

// finish moves an entry to a terminal status, removes it from the
// queue, unblocks waiters and prunes old terminal records.
func (d *Dispatcher) finish(e *entry, st Status, err error) {
	d.mu.Lock()
	e.status = st
	e.err = err
	for i, cand := range d.queue {
		if cand == e {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	switch st {
	case StatusAcked:
		d.acked++
	case StatusFailed:
		d.failed++
	}
	d.terminal = append(d.terminal, e.op.ID)
	for len(d.terminal) > d.opts.RetainTerminal {
		delete(d.entries, d.terminal[0])
		d.terminal = d.terminal[1:]
	}
	d.mu.Unlock()
	close(e.done)
}

// discardAll fails every non-terminal operation with cause. Called once
// on teardown.
func (d *Dispatcher) discardAll(cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	for _, e := range pending {
		e.status = StatusFailed
		e.err = cause
		d.failed++
		d.terminal = append(d.terminal, e.op.ID)
	}
	d.mu.Unlock()
	for _, e := range pending {
		close(e.done)
	}
	if len(pending) > 0 {
		d.opts.Logger.Info("dispatch: discarded unacknowledged operations", "count", len(pending))
	}
}
