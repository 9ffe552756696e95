// Package bridge defines the contract between the dispatcher and the
// render surface: an adapter with an explicit connection lifecycle
// (Disconnected → Connecting → Ready → Disconnected) that applies
// sequenced operations across the sandbox boundary.
//
// The lifecycle is a real state machine, not a boolean. Its transitions
// are observable through a typed subscription, and the Ready transition
// is what re-triggers queue draining — a one-shot "is it ready yet"
// check at enqueue time is exactly the race this design exists to kill.
//
// A bridge never reorders: it applies exactly what it is given, in call
// order. Everything else (sequencing, retries, buffering) belongs to
// the dispatcher.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// State is the bridge connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Operation is the unit of delivery across the sandbox boundary.
// ID is the idempotency key: redelivering the same ID after a timeout
// must be safe for the render surface. Seq is assigned exactly once by
// the dispatcher; delivery happens in non-decreasing Seq order.
// Payload is the originating command encoded as JSON — the bridge
// treats it as opaque.
type Operation struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Transport errors. ErrTimeout and ErrConnectionLost are retryable;
// a RejectError is permanent and must be surfaced, not retried.
var (
	ErrTimeout        = errors.New("bridge: apply timed out")
	ErrConnectionLost = errors.New("bridge: connection lost")
	ErrNotReady       = errors.New("bridge: not ready")
)

// RejectError is a permanent rejection of a well-formed operation by
// the render surface (e.g. an element kind it cannot draw).
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return "bridge: rejected: " + e.Reason }

// Bridge is the render surface adapter.
type Bridge interface {
	// Connect transitions Disconnected → Connecting → Ready. It may
	// return before Ready is reached (readiness is signalled through
	// the subscription); an error means the attempt failed and the
	// state is back to Disconnected.
	Connect(ctx context.Context) error

	// Apply delivers one operation. It may be arbitrarily slow and
	// must honour ctx cancellation. Returns nil on ack, ErrTimeout,
	// ErrConnectionLost, or a *RejectError.
	Apply(ctx context.Context, op Operation) error

	// Disconnect tears the connection down and transitions to
	// Disconnected.
	Disconnect() error

	// State returns the current lifecycle state.
	State() State

	// Subscribe returns a channel of lifecycle transitions. Every
	// subscriber gets its own channel; transitions are delivered in
	// order and the channel lives as long as the bridge.
	Subscribe() <-chan State
}
