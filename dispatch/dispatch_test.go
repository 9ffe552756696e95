package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/dispatch"
)

func startDispatcher(t *testing.T, b bridge.Bridge, opts dispatch.Options) *dispatch.Dispatcher {
	t.Helper()
	d := dispatch.New(b, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d
}

func waitAll(t *testing.T, d *dispatch.Dispatcher, ops []bridge.Operation) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, op := range ops {
		if err := d.Wait(ctx, op.ID); err != nil {
			t.Fatalf("wait %s (seq %d): %v", op.ID, op.Seq, err)
		}
	}
}

func TestDeliversInSequenceOrder(t *testing.T) {
	lb := bridge.NewLoopback()
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{})

	var ops []bridge.Operation
	for i := 0; i < 20; i++ {
		payload, _ := json.Marshal(map[string]int{"n": i})
		ops = append(ops, d.Enqueue("add_element", payload))
	}
	waitAll(t, d, ops)

	applied := lb.Applied()
	if len(applied) != 20 {
		t.Fatalf("applied = %d ops, want 20", len(applied))
	}
	for i, op := range applied {
		if op.Seq != int64(i+1) {
			t.Fatalf("applied[%d].Seq = %d, want %d", i, op.Seq, i+1)
		}
	}
}

func TestEnqueueWhileConnectingDeliversExactlyOnceOnReady(t *testing.T) {
	lb := bridge.NewLoopback(bridge.WithManualReady())
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if lb.State() != bridge.StateConnecting {
		t.Fatalf("state = %s, want connecting", lb.State())
	}
	d := startDispatcher(t, lb, dispatch.Options{})

	var ops []bridge.Operation
	for i := 0; i < 3; i++ {
		ops = append(ops, d.Enqueue("add_element", nil))
	}

	// Nothing may cross the bridge before Ready.
	time.Sleep(50 * time.Millisecond)
	if n := len(lb.Applied()); n != 0 {
		t.Fatalf("applied %d ops while connecting, want 0", n)
	}

	lb.MarkReady()
	waitAll(t, d, ops)

	applied := lb.Applied()
	if len(applied) != 3 {
		t.Fatalf("applied = %d ops, want exactly 3", len(applied))
	}
	seen := map[string]bool{}
	for _, op := range applied {
		if seen[op.ID] {
			t.Fatalf("operation %s delivered twice", op.ID)
		}
		seen[op.ID] = true
	}
	if st := d.Stats(); st.Depth != 0 {
		t.Fatalf("queue depth after drain = %d, want 0", st.Depth)
	}
}

func TestRetryAfterTimeoutReusesOperationID(t *testing.T) {
	calls := 0
	lb := bridge.NewLoopback(bridge.WithApply(func(ctx context.Context, op bridge.Operation) error {
		calls++
		if calls == 1 {
			<-ctx.Done() // first delivery hangs past the apply timeout
			return ctx.Err()
		}
		return nil
	}))
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{ApplyTimeout: 30 * time.Millisecond})

	op := d.Enqueue("update_element", nil)
	waitAll(t, d, []bridge.Operation{op})

	applied := lb.Applied()
	if len(applied) != 1 {
		t.Fatalf("applied = %d ops, want 1", len(applied))
	}
	if applied[0].ID != op.ID {
		t.Fatalf("retried with ID %s, want original %s", applied[0].ID, op.ID)
	}
	st := d.Stats()
	if st.Retries != 1 || st.Acked != 1 {
		t.Fatalf("stats = %+v, want 1 retry and 1 ack", st)
	}
}

func TestRejectionIsPermanent(t *testing.T) {
	calls := 0
	lb := bridge.NewLoopback(bridge.WithApply(func(ctx context.Context, op bridge.Operation) error {
		calls++
		return &bridge.RejectError{Reason: "unsupported shape"}
	}))
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{})

	op := d.Enqueue("add_element", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.Wait(ctx, op.ID)
	var rej *bridge.RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("wait: err = %v, want RejectError", err)
	}
	if calls != 1 {
		t.Fatalf("bridge called %d times for a rejection, want 1", calls)
	}
	if st, _ := d.Status(op.ID); st != dispatch.StatusFailed {
		t.Fatalf("status = %s, want failed", st)
	}
}

func TestRetriesExhaustAtMaxAttempts(t *testing.T) {
	calls := 0
	lb := bridge.NewLoopback(bridge.WithApply(func(ctx context.Context, op bridge.Operation) error {
		calls++
		return fmt.Errorf("transient flake %d", calls)
	}))
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{MaxAttempts: 3})

	op := d.Enqueue("add_element", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx, op.ID); err == nil {
		t.Fatal("wait succeeded after exhausted retries")
	}
	if calls != 3 {
		t.Fatalf("bridge called %d times, want 3", calls)
	}
}

func TestConnectionLossReplaysFromQueueHead(t *testing.T) {
	var lb *bridge.Loopback
	dropped := false
	lb = bridge.NewLoopback(bridge.WithApply(func(ctx context.Context, op bridge.Operation) error {
		if !dropped && op.Seq == 2 {
			dropped = true
			lb.Drop()
			return bridge.ErrConnectionLost
		}
		return nil
	}))
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{})

	var ops []bridge.Operation
	for i := 0; i < 3; i++ {
		ops = append(ops, d.Enqueue("add_element", nil))
	}

	// Let the drop happen, then reconnect; the Ready transition resumes
	// the drain from the unacknowledged operation.
	time.Sleep(50 * time.Millisecond)
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitAll(t, d, ops)

	applied := lb.Applied()
	if len(applied) != 3 {
		t.Fatalf("applied = %d ops, want 3", len(applied))
	}
	for i, op := range applied {
		if op.Seq != int64(i+1) {
			t.Fatalf("applied[%d].Seq = %d, order broken after reconnect", i, op.Seq)
		}
	}
}

func TestClearAppliesAfterPendingAdds(t *testing.T) {
	lb := bridge.NewLoopback(bridge.WithManualReady())
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := startDispatcher(t, lb, dispatch.Options{})

	ops := []bridge.Operation{
		d.Enqueue("add_element", nil),
		d.Enqueue("add_element", nil),
		d.Enqueue("clear_all", nil),
	}
	lb.MarkReady()
	waitAll(t, d, ops)

	applied := lb.Applied()
	want := []string{"add_element", "add_element", "clear_all"}
	if len(applied) != len(want) {
		t.Fatalf("applied = %d ops, want %d", len(applied), len(want))
	}
	for i, op := range applied {
		if op.Kind != want[i] {
			t.Fatalf("applied[%d] = %s, want %s", i, op.Kind, want[i])
		}
	}
}

func TestTeardownDiscardsUnacknowledged(t *testing.T) {
	lb := bridge.NewLoopback(bridge.WithManualReady())
	if err := lb.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := dispatch.New(lb, dispatch.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	op := d.Enqueue("add_element", nil)
	cancel()
	<-done

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	err := d.Wait(waitCtx, op.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("wait after teardown: err = %v, want context.Canceled", err)
	}
	if st, _ := d.Status(op.ID); st != dispatch.StatusFailed {
		t.Fatalf("status after teardown = %s, want failed", st)
	}
}
