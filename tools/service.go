// Package tools is the tool invocation endpoint: it parses structured
// agent commands, validates them before any state change, drives the
// canvas store, and correlates delivery outcomes back to the caller.
//
// It is the only component that returns results across the caller
// boundary. The dispatcher and bridge report per-operation outcomes;
// the service maps those back to the originating command.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/canvasd/analytics"
	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/dispatch"
	"github.com/hazyhaar/canvasd/idgen"
	"github.com/hazyhaar/canvasd/layout"
)

// Options configures a Service.
type Options struct {
	// GridUnit is the canvas grid unit used by arrange and analytics.
	// Default: 8.
	GridUnit float64
	// DeliveryTimeout bounds how long create_template waits for its
	// constituent operations to reach the render surface. Default: 30s.
	DeliveryTimeout time.Duration
	// NewElementID generates element IDs. Default: "el_"-prefixed UUIDv7.
	NewElementID idgen.Generator
	// NewTemplateTag generates template tags. Default: "tpl_"-prefixed UUIDv7.
	NewTemplateTag idgen.Generator
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.GridUnit <= 0 {
		o.GridUnit = 8
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 30 * time.Second
	}
	if o.NewElementID == nil {
		o.NewElementID = idgen.Prefixed("el_", idgen.Default)
	}
	if o.NewTemplateTag == nil {
		o.NewTemplateTag = idgen.Prefixed("tpl_", idgen.Default)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Service wires the store to the dispatcher and implements every tool
// command. Create exactly one per canvas instance, before the first
// mutation (the store subscription must exist before any Apply).
type Service struct {
	store     *canvas.Store
	disp      *dispatch.Dispatcher
	opts      Options
	templates map[string]Template

	// byVersion correlates store versions to enqueued operations, so a
	// caller that just applied a mutation can await its delivery. The
	// relay writes it while the store lock is held, which makes the
	// mapping race-free: version → operation is decided in mutation
	// order.
	mu        sync.Mutex
	byVersion map[int64]bridge.Operation
	versions  []int64 // insertion order, for pruning
}

// relayRetain caps how many version→operation mappings are kept.
const relayRetain = 4096

// NewService creates the service and subscribes the dispatcher to the
// store's change feed.
func NewService(store *canvas.Store, disp *dispatch.Dispatcher, opts Options) *Service {
	opts.defaults()
	s := &Service{
		store:     store,
		disp:      disp,
		opts:      opts,
		templates: builtinTemplates(),
		byVersion: make(map[int64]bridge.Operation),
	}
	store.Subscribe(s.relay)
	return s
}

// relay forwards every accepted mutation to the dispatcher. Runs
// synchronously under the store lock, so enqueue order (and therefore
// sequence order) matches version order exactly.
func (s *Service) relay(ch canvas.Change) {
	kind, payload, err := canvas.EncodeCommand(ch.Command)
	if err != nil {
		// Commands are plain structs; this cannot fail for the sealed
		// sum. Log loudly rather than lose an operation silently.
		s.opts.Logger.Error("tools: encode command failed", "command", ch.Command.Name(), "error", err)
		return
	}
	op := s.disp.Enqueue(kind, payload)
	s.mu.Lock()
	s.byVersion[ch.Snapshot.Version] = op
	s.versions = append(s.versions, ch.Snapshot.Version)
	for len(s.versions) > relayRetain {
		delete(s.byVersion, s.versions[0])
		s.versions = s.versions[1:]
	}
	s.mu.Unlock()
}

// opFor returns the operation enqueued for a given store version.
func (s *Service) opFor(version int64) (bridge.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byVersion[version]
	return op, ok
}

// RegisterTemplate adds or replaces a named template.
func (s *Service) RegisterTemplate(name string, t Template) {
	s.templates[name] = t
}

// CreateElement validates the request and adds one element.
func (s *Service) CreateElement(req CreateElementRequest) (*MutationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	el := canvas.Element{
		ID:   s.opts.NewElementID(),
		Kind: canvas.Kind(req.Kind),
		Geometry: canvas.Geometry{
			X: *req.X, Y: *req.Y, Width: *req.Width, Height: *req.Height,
		},
		Style: canvas.Style{
			StrokeColor:     req.StrokeColor,
			FillColor:       req.FillColor,
			StrokeWidth:     req.StrokeWidth,
			CornerRoundness: req.CornerRoundness,
			FontSize:        req.FontSize,
			Text:            req.Text,
		},
		GroupID: req.GroupID,
	}
	snap, err := s.store.Apply(canvas.AddElement{Element: el})
	if err != nil {
		return nil, err
	}
	return s.mutationResult(el.ID, snap), nil
}

// UpdateElement validates the request and patches one element.
func (s *Service) UpdateElement(req UpdateElementRequest) (*MutationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	snap, err := s.store.Apply(canvas.UpdateElement{ID: req.ID, Patch: req.Patch})
	if err != nil {
		return nil, err
	}
	return s.mutationResult(req.ID, snap), nil
}

// DeleteElement validates the request and removes one element.
func (s *Service) DeleteElement(req DeleteElementRequest) (*MutationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	snap, err := s.store.Apply(canvas.DeleteElement{ID: req.ID})
	if err != nil {
		return nil, err
	}
	return s.mutationResult(req.ID, snap), nil
}

// Clear removes every element with a single operation.
func (s *Service) Clear() (*MutationResult, error) {
	snap, err := s.store.Apply(canvas.ClearAll{})
	if err != nil {
		return nil, err
	}
	return s.mutationResult("", snap), nil
}

// QueryState returns the current snapshot.
func (s *Service) QueryState() canvas.Snapshot {
	return s.store.Snapshot()
}

// Analyze computes analytics over the current snapshot. It never
// touches the bridge; a disconnected render surface does not block it.
func (s *Service) Analyze() analytics.Summary {
	return analytics.Analyze(s.store.Snapshot(), s.opts.GridUnit)
}

// Arrange runs the layout engine over the current snapshot (or the
// requested subset) and submits every resulting geometry back through
// the ordinary update path, one operation per moved element.
func (s *Service) Arrange(req ArrangeRequest) (*ArrangeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	snap := s.store.Snapshot()

	elements := snap.Elements
	if len(req.IDs) > 0 {
		want := make(map[string]bool, len(req.IDs))
		for _, id := range req.IDs {
			want[id] = true
		}
		var subset []canvas.Element
		for _, el := range snap.Elements {
			if want[el.ID] {
				subset = append(subset, el)
			}
		}
		if len(subset) != len(req.IDs) {
			return nil, fmt.Errorf("%w: arrange references a missing element", canvas.ErrElementNotFound)
		}
		elements = subset
	}

	placements, err := layout.Arrange(elements, layout.Strategy(req.Strategy), req.Params)
	if err != nil {
		return nil, err
	}

	var version int64 = snap.Version
	for _, pl := range placements {
		g := pl.Geometry
		snap, err := s.store.Apply(canvas.UpdateElement{
			ID: pl.ID,
			Patch: canvas.Patch{
				X: &g.X, Y: &g.Y, Width: &g.Width, Height: &g.Height,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("arrange apply %s: %w", pl.ID, err)
		}
		version = snap.Version
	}
	return &ArrangeResult{Moved: len(placements), Version: version, Places: placements}, nil
}

// CreateTemplate expands a named template to an ordered batch of
// elements. The whole batch is validated first: if any constituent is
// invalid, nothing is applied and the error names the constituent and
// its field. Once accepted, each constituent is its own operation;
// CreateTemplate waits for all of them to reach the render surface
// before reporting success. A delivery failure is reported with the
// failing constituent, but the accepted elements stay in the
// authoritative state — render divergence is surfaced, not rolled back.
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*TemplateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	tpl, ok := s.templates[req.Name]
	if !ok {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("unknown template %q", req.Name)}
	}

	items := tpl(req.OriginX, req.OriginY)
	if len(items) == 0 {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("template %q expands to nothing", req.Name)}
	}

	// Validate every constituent before touching the store.
	for i, item := range items {
		if err := item.validate(); err != nil {
			return nil, fmt.Errorf("template %q constituent %d (%s): %w", req.Name, i+1, item.Kind, err)
		}
	}

	tag := s.opts.NewTemplateTag()
	ids := make([]string, 0, len(items))
	ops := make([]bridge.Operation, 0, len(items))
	var version int64
	for i, item := range items {
		el := canvas.Element{
			ID:       s.opts.NewElementID(),
			Kind:     item.Kind,
			Geometry: item.Geometry,
			Style:    item.Style,
			GroupID:  tag,
		}
		snap, err := s.store.Apply(canvas.AddElement{Element: el})
		if err != nil {
			// Unreachable for a validated batch against a store we hold
			// the only template-ID generator for, but never swallow it.
			return nil, fmt.Errorf("template %q constituent %d: %w", req.Name, i+1, err)
		}
		ids = append(ids, el.ID)
		version = snap.Version
		if op, ok := s.opFor(snap.Version); ok {
			ops = append(ops, op)
		}
	}

	// Await delivery of all constituents.
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	defer cancel()
	for i, op := range ops {
		if err := s.disp.Wait(waitCtx, op.ID); err != nil {
			return nil, fmt.Errorf("template %q constituent %d (%s) not delivered: %w",
				req.Name, i+1, ids[i], err)
		}
	}

	return &TemplateResult{Name: req.Name, Tag: tag, IDs: ids, Version: version}, nil
}

// AwaitDelivery blocks until the operation behind the given store
// version reaches a terminal status.
func (s *Service) AwaitDelivery(ctx context.Context, version int64) error {
	op, ok := s.opFor(version)
	if !ok {
		return fmt.Errorf("tools: no operation recorded for version %d", version)
	}
	return s.disp.Wait(ctx, op.ID)
}

func (s *Service) mutationResult(id string, snap canvas.Snapshot) *MutationResult {
	res := &MutationResult{ID: id, Version: snap.Version}
	if op, ok := s.opFor(snap.Version); ok {
		res.OpID = op.ID
	}
	return res
}

// IsValidation reports whether err is a validation error (bad command
// shape or argument), as opposed to a state or transport error.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
