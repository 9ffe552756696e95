package canvas_test

import (
	"errors"
	"math"
	"testing"

	"github.com/hazyhaar/canvasd/canvas"
)

func rect(id string, x, y, w, h float64) canvas.Element {
	return canvas.Element{
		ID:       id,
		Kind:     canvas.KindRectangle,
		Geometry: canvas.Geometry{X: x, Y: y, Width: w, Height: h},
	}
}

func mustApply(t *testing.T, s *canvas.Store, cmd canvas.Command) canvas.Snapshot {
	t.Helper()
	snap, err := s.Apply(cmd)
	if err != nil {
		t.Fatalf("apply %s: %v", cmd.Name(), err)
	}
	return snap
}

func TestApplyBumpsVersionByOne(t *testing.T) {
	s := canvas.NewStore()
	snap := mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})
	if snap.Version != 1 {
		t.Fatalf("version = %d, want 1", snap.Version)
	}
	snap = mustApply(t, s, canvas.AddElement{Element: rect("b", 20, 0, 10, 10)})
	if snap.Version != 2 {
		t.Fatalf("version = %d, want 2", snap.Version)
	}
	if len(snap.Elements) != 2 {
		t.Fatalf("elements = %d, want 2", len(snap.Elements))
	}
}

func TestRejectedCommandLeavesStateUntouched(t *testing.T) {
	s := canvas.NewStore()
	mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})

	_, err := s.Apply(canvas.DeleteElement{ID: "ghost"})
	if !errors.Is(err, canvas.ErrElementNotFound) {
		t.Fatalf("delete ghost: err = %v, want ErrElementNotFound", err)
	}
	if v := s.Version(); v != 1 {
		t.Fatalf("version after rejected delete = %d, want 1", v)
	}

	_, err = s.Apply(canvas.AddElement{Element: rect("a", 5, 5, 1, 1)})
	if !errors.Is(err, canvas.ErrDuplicateID) {
		t.Fatalf("duplicate add: err = %v, want ErrDuplicateID", err)
	}

	el := rect("b", 0, 0, 10, 10)
	el.Geometry.Width = math.NaN()
	_, err = s.Apply(canvas.AddElement{Element: el})
	if !errors.Is(err, canvas.ErrInvalidGeometry) {
		t.Fatalf("NaN geometry: err = %v, want ErrInvalidGeometry", err)
	}
	if v := s.Version(); v != 1 {
		t.Fatalf("version after rejected adds = %d, want 1", v)
	}
}

func TestUpdateValidatesPatchedGeometryAsAWhole(t *testing.T) {
	s := canvas.NewStore()
	mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})

	bad := -5.0
	_, err := s.Apply(canvas.UpdateElement{ID: "a", Patch: canvas.Patch{Width: &bad}})
	if !errors.Is(err, canvas.ErrInvalidGeometry) {
		t.Fatalf("negative width patch: err = %v, want ErrInvalidGeometry", err)
	}

	x := 48.0
	snap := mustApply(t, s, canvas.UpdateElement{ID: "a", Patch: canvas.Patch{X: &x}})
	el, ok := snap.Get("a")
	if !ok {
		t.Fatal("element a missing after update")
	}
	if el.Geometry.X != 48 || el.Geometry.Width != 10 {
		t.Fatalf("patched geometry = %+v, want x=48 width=10", el.Geometry)
	}
}

func TestClearAllIsOneChangeEvent(t *testing.T) {
	s := canvas.NewStore()
	var events []string
	s.Subscribe(func(ch canvas.Change) {
		events = append(events, ch.Command.Name())
	})

	mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})
	mustApply(t, s, canvas.AddElement{Element: rect("b", 20, 0, 10, 10)})
	snap := mustApply(t, s, canvas.ClearAll{})

	if len(snap.Elements) != 0 {
		t.Fatalf("elements after clear = %d, want 0", len(snap.Elements))
	}
	if snap.Version != 3 {
		t.Fatalf("version after clear = %d, want 3", snap.Version)
	}
	want := []string{"add_element", "add_element", "clear_all"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := canvas.NewStore()
	snap := mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})
	snap.Elements[0].Geometry.X = 999

	cur := s.Snapshot()
	el, _ := cur.Get("a")
	if el.Geometry.X != 0 {
		t.Fatalf("store observed snapshot mutation: x = %v", el.Geometry.X)
	}
}

func TestAddAssignsTopZOrder(t *testing.T) {
	s := canvas.NewStore()
	first := rect("a", 0, 0, 10, 10)
	first.ZOrder = 7
	mustApply(t, s, canvas.AddElement{Element: first})
	snap := mustApply(t, s, canvas.AddElement{Element: rect("b", 20, 0, 10, 10)})

	el, _ := snap.Get("b")
	if el.ZOrder != 8 {
		t.Fatalf("auto zOrder = %d, want 8", el.ZOrder)
	}
}

func TestSubscriberSeesChangesInVersionOrder(t *testing.T) {
	s := canvas.NewStore()
	var versions []int64
	s.Subscribe(func(ch canvas.Change) {
		versions = append(versions, ch.Snapshot.Version)
	})

	mustApply(t, s, canvas.AddElement{Element: rect("a", 0, 0, 10, 10)})
	mustApply(t, s, canvas.AddElement{Element: rect("b", 20, 0, 10, 10)})
	mustApply(t, s, canvas.DeleteElement{ID: "a"})

	for i, v := range versions {
		if v != int64(i+1) {
			t.Fatalf("versions = %v, want strictly sequential from 1", versions)
		}
	}
}

func TestCommandCodecRoundTrip(t *testing.T) {
	x := 3.0
	cmds := []canvas.Command{
		canvas.AddElement{Element: rect("a", 1, 2, 3, 4)},
		canvas.UpdateElement{ID: "a", Patch: canvas.Patch{X: &x}},
		canvas.DeleteElement{ID: "a"},
		canvas.ClearAll{},
	}
	for _, cmd := range cmds {
		kind, payload, err := canvas.EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.Name(), err)
		}
		if kind != cmd.Name() {
			t.Fatalf("encoded kind = %s, want %s", kind, cmd.Name())
		}
		decoded, err := canvas.DecodeCommand(kind, payload)
		if err != nil {
			t.Fatalf("decode %s: %v", kind, err)
		}
		if decoded.Name() != cmd.Name() {
			t.Fatalf("decoded %s, want %s", decoded.Name(), cmd.Name())
		}
	}

	if _, err := canvas.DecodeCommand("teleport_element", nil); err == nil {
		t.Fatal("decoding unknown kind succeeded")
	}
}
