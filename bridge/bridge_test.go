package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/canvasd/bridge"
)

func TestLifecycleTransitionsAreObservable(t *testing.T) {
	lb := bridge.NewLoopback(bridge.WithManualReady())
	states := lb.Subscribe()

	if lb.State() != bridge.StateDisconnected {
		t.Fatalf("initial state = %s, want disconnected", lb.State())
	}
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	lb.MarkReady()
	lb.Drop()

	want := []bridge.State{bridge.StateConnecting, bridge.StateReady, bridge.StateDisconnected}
	for i, w := range want {
		select {
		case st := <-states:
			if st != w {
				t.Fatalf("transition %d = %s, want %s", i, st, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("transition %d never delivered", i)
		}
	}
}

func TestTransitionToSameStateIsNoOp(t *testing.T) {
	lb := bridge.NewLoopback()
	states := lb.Subscribe()

	lb.Drop() // already disconnected
	select {
	case st := <-states:
		t.Fatalf("no-op transition delivered %s", st)
	default:
	}
}

func TestLastReadyAtRecordsReadyTransition(t *testing.T) {
	lb := bridge.NewLoopback()
	if !lb.LastReadyAt().IsZero() {
		t.Fatal("LastReadyAt set before first Ready")
	}
	before := time.Now()
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	at := lb.LastReadyAt()
	if at.Before(before) {
		t.Fatalf("LastReadyAt = %v, want >= %v", at, before)
	}
}

func TestApplyRequiresReady(t *testing.T) {
	lb := bridge.NewLoopback()
	err := lb.Apply(context.Background(), bridge.Operation{ID: "op_1", Kind: "add_element", Seq: 1})
	if !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("apply while disconnected: err = %v, want ErrNotReady", err)
	}
	if n := len(lb.Applied()); n != 0 {
		t.Fatalf("recorded %d ops while disconnected", n)
	}
}

func TestRejectErrorIsNotATransportError(t *testing.T) {
	rej := &bridge.RejectError{Reason: "unsupported shape"}
	var target *bridge.RejectError
	if !errors.As(error(rej), &target) {
		t.Fatal("RejectError not matchable with errors.As")
	}
	if errors.Is(rej, bridge.ErrConnectionLost) || errors.Is(rej, bridge.ErrTimeout) {
		t.Fatal("RejectError matches a retryable transport error")
	}
}
