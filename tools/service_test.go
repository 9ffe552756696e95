package tools_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/dispatch"
	"github.com/hazyhaar/canvasd/tools"
)

func f(v float64) *float64 { return &v }

// newService wires a store, a ready loopback bridge and a running
// dispatcher behind a Service, torn down with the test.
func newService(t *testing.T) (*tools.Service, *bridge.Loopback, *dispatch.Dispatcher) {
	t.Helper()
	lb := bridge.NewLoopback()
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
	t.Cleanup(func() {
		cancel()
		<-done
	})

	store := canvas.NewStore()
	svc := tools.NewService(store, d, tools.Options{DeliveryTimeout: 5 * time.Second})
	return svc, lb, d
}

func createRect(t *testing.T, svc *tools.Service, x, y, w, h float64) *tools.MutationResult {
	t.Helper()
	res, err := svc.CreateElement(tools.CreateElementRequest{
		Kind: "rectangle", X: f(x), Y: f(y), Width: f(w), Height: f(h),
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	return res
}

func TestCreateElementValidatesBeforeApply(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateElement(tools.CreateElementRequest{
		Kind: "rectangle", X: f(0), Y: f(0), Height: f(10), // width missing
	})
	if !tools.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	var v *tools.ValidationError
	if !errors.As(err, &v) || v.Field != "width" {
		t.Fatalf("err = %v, want field \"width\"", err)
	}

	_, err = svc.CreateElement(tools.CreateElementRequest{
		Kind: "blob", X: f(0), Y: f(0), Width: f(10), Height: f(10),
	})
	v = nil
	if !errors.As(err, &v) || v.Field != "kind" {
		t.Fatalf("unknown kind: err = %v, want field \"kind\"", err)
	}

	// Nothing reached the store.
	if snap := svc.QueryState(); snap.Version != 0 {
		t.Fatalf("version = %d after rejected creates, want 0", snap.Version)
	}
}

func TestMutationsFlowToBridgeInOrder(t *testing.T) {
	svc, lb, d := newService(t)

	a := createRect(t, svc, 0, 0, 80, 40)
	b := createRect(t, svc, 96, 0, 80, 40)
	if a.OpID == "" || b.OpID == "" {
		t.Fatalf("mutation results missing op IDs: %+v, %+v", a, b)
	}

	del, err := svc.DeleteElement(tools.DeleteElementRequest{ID: a.ID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx, del.OpID); err != nil {
		t.Fatalf("wait for delete delivery: %v", err)
	}

	applied := lb.Applied()
	wantKinds := []string{"add_element", "add_element", "delete_element"}
	if len(applied) != len(wantKinds) {
		t.Fatalf("applied = %d ops, want %d", len(applied), len(wantKinds))
	}
	for i, op := range applied {
		if op.Kind != wantKinds[i] {
			t.Fatalf("applied[%d] = %s, want %s", i, op.Kind, wantKinds[i])
		}
	}
}

func TestUpdateRequiresNonEmptyPatch(t *testing.T) {
	svc, _, _ := newService(t)
	a := createRect(t, svc, 0, 0, 80, 40)

	_, err := svc.UpdateElement(tools.UpdateElementRequest{ID: a.ID})
	if !tools.IsValidation(err) {
		t.Fatalf("empty patch: err = %v, want validation error", err)
	}

	_, err = svc.UpdateElement(tools.UpdateElementRequest{
		ID: "ghost", Patch: canvas.Patch{X: f(8)},
	})
	if !errors.Is(err, canvas.ErrElementNotFound) {
		t.Fatalf("ghost update: err = %v, want ErrElementNotFound", err)
	}
}

func TestTemplateIsAllOrNothing(t *testing.T) {
	svc, _, _ := newService(t)

	svc.RegisterTemplate("cursed", func(ox, oy float64) []tools.TemplateItem {
		items := make([]tools.TemplateItem, 5)
		for i := range items {
			items[i] = tools.TemplateItem{
				Kind:     canvas.KindRectangle,
				Geometry: canvas.Geometry{X: ox, Y: oy + float64(i)*56, Width: 80, Height: 40},
			}
		}
		items[4].Geometry.Width = -1 // fifth constituent is invalid
		return items
	})

	_, err := svc.CreateTemplate(context.Background(), tools.CreateTemplateRequest{Name: "cursed"})
	if err == nil {
		t.Fatal("invalid template accepted")
	}
	if !strings.Contains(err.Error(), "constituent 5") || !strings.Contains(err.Error(), "width") {
		t.Fatalf("error does not name the failing constituent and field: %v", err)
	}
	if snap := svc.QueryState(); len(snap.Elements) != 0 || snap.Version != 0 {
		t.Fatalf("partial template applied: version %d, %d elements", snap.Version, len(snap.Elements))
	}
}

func TestTemplateCreatesGroupedBatch(t *testing.T) {
	svc, lb, _ := newService(t)

	res, err := svc.CreateTemplate(context.Background(), tools.CreateTemplateRequest{
		Name: "flowchart", OriginX: 40, OriginY: 40,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if len(res.IDs) != 7 {
		t.Fatalf("flowchart ids = %d, want 7", len(res.IDs))
	}
	if res.Tag == "" {
		t.Fatal("template result missing tag")
	}

	snap := svc.QueryState()
	if len(snap.Elements) != 7 {
		t.Fatalf("elements = %d, want 7", len(snap.Elements))
	}
	for _, el := range snap.Elements {
		if el.GroupID != res.Tag {
			t.Fatalf("element %s group = %q, want template tag %q", el.ID, el.GroupID, res.Tag)
		}
	}

	// CreateTemplate returns only after delivery of every constituent.
	if n := len(lb.Applied()); n != 7 {
		t.Fatalf("applied = %d ops at return, want 7", n)
	}
}

func TestUnknownTemplateIsValidationError(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CreateTemplate(context.Background(), tools.CreateTemplateRequest{Name: "mandala"})
	if !tools.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestArrangeSubmitsOrdinaryUpdates(t *testing.T) {
	svc, _, d := newService(t)

	createRect(t, svc, 500, 500, 80, 40)
	createRect(t, svc, 501, 501, 80, 40)
	createRect(t, svc, 502, 502, 80, 40)
	createRect(t, svc, 503, 503, 80, 40)

	res, err := svc.Arrange(tools.ArrangeRequest{Strategy: "grid"})
	if err != nil {
		t.Fatalf("arrange: %v", err)
	}
	if res.Moved != 4 {
		t.Fatalf("moved = %d, want 4", res.Moved)
	}
	if res.Version != 8 { // 4 adds + 4 updates
		t.Fatalf("version = %d, want 8", res.Version)
	}

	// Arranged geometry flows through the same delivery path.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.AwaitDelivery(ctx, res.Version); err != nil {
		t.Fatalf("await delivery: %v", err)
	}
	if st := d.Stats(); st.Enqueued != 8 {
		t.Fatalf("enqueued = %d, want 8", st.Enqueued)
	}
}

func TestArrangeRejectsMissingSubsetIDs(t *testing.T) {
	svc, _, _ := newService(t)
	a := createRect(t, svc, 0, 0, 80, 40)

	_, err := svc.Arrange(tools.ArrangeRequest{Strategy: "stack", IDs: []string{a.ID, "ghost"}})
	if !errors.Is(err, canvas.ErrElementNotFound) {
		t.Fatalf("err = %v, want ErrElementNotFound", err)
	}
}

func TestRenderRejectionDoesNotRollBackState(t *testing.T) {
	lb := bridge.NewLoopback(bridge.WithApply(func(ctx context.Context, op bridge.Operation) error {
		return &bridge.RejectError{Reason: "unsupported kind"}
	}))
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
	t.Cleanup(func() {
		cancel()
		<-done
	})

	store := canvas.NewStore()
	svc := tools.NewService(store, d, tools.Options{})

	res := createRect(t, svc, 0, 0, 80, 40)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	err := svc.AwaitDelivery(waitCtx, res.Version)
	var rej *bridge.RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("await delivery: err = %v, want RejectError", err)
	}

	// The divergence is surfaced to the caller; authoritative state
	// keeps the accepted element.
	snap := svc.QueryState()
	if _, ok := snap.Get(res.ID); !ok {
		t.Fatal("rejected render rolled back the authoritative state")
	}
}

func TestAnalyzeWorksWithoutBridge(t *testing.T) {
	lb := bridge.NewLoopback() // never connected
	d := dispatch.New(lb, dispatch.Options{})
	store := canvas.NewStore()
	svc := tools.NewService(store, d, tools.Options{})

	createRect(t, svc, 0, 0, 80, 40)
	s := svc.Analyze()
	if s.ElementCount != 1 {
		t.Fatalf("analytics count = %d with bridge down, want 1", s.ElementCount)
	}
}
