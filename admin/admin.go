// Package admin exposes a read-only HTTP surface for inspecting the
// canvas: state, queue depth, bridge lifecycle and analytics. It never
// mutates anything; all writes go through the tool endpoint.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/canvasd/analytics"
	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/dispatch"
)

// Options configures the admin router.
type Options struct {
	// GridUnit feeds the analytics endpoint. Default: 8.
	GridUnit float64
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.GridUnit <= 0 {
		o.GridUnit = 8
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type server struct {
	store *canvas.Store
	disp  *dispatch.Dispatcher
	brg   bridge.Bridge
	opts  Options
}

// NewRouter builds the admin HTTP handler.
func NewRouter(store *canvas.Store, disp *dispatch.Dispatcher, brg bridge.Bridge, opts Options) http.Handler {
	opts.defaults()
	s := &server{store: store, disp: disp, brg: brg, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/state", s.handleState)
	r.Get("/queue", s.handleQueue)
	r.Get("/bridge", s.handleBridge)
	r.Get("/analytics", s.handleAnalytics)
	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":  "ok",
		"version": s.store.Version(),
		"bridge":  s.brg.State().String(),
	})
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.store.Snapshot())
}

func (s *server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.disp.Stats())
}

func (s *server) handleBridge(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"state": s.brg.State().String(),
	}
	if lr, ok := s.brg.(interface{ LastReadyAt() time.Time }); ok {
		if at := lr.LastReadyAt(); !at.IsZero() {
			out["lastReadyAt"] = at
		}
	}
	s.writeJSON(w, out)
}

func (s *server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, analytics.Analyze(s.store.Snapshot(), s.opts.GridUnit))
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Error("admin: write response", "error", err)
	}
}
