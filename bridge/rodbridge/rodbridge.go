// Package rodbridge drives a real render surface: a browser page that
// exposes a window.__canvasApply hook. The page is the presentation
// sandbox; every operation crosses into it through a single JS call and
// reports back {ok, reason}.
package rodbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/canvasd/bridge"
)

// applyHook is the function the render page must install before the
// bridge reports Ready.
const applyHook = "__canvasApply"

// Options configures a rod-backed bridge.
type Options struct {
	// PageURL is the render page to open. Required.
	PageURL string

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	RemoteURL string

	// ReadyTimeout bounds how long Connect waits for the page to install
	// its apply hook. Default: 30s.
	ReadyTimeout time.Duration

	// ReadyPoll is the hook polling interval. Default: 100ms.
	ReadyPoll time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 30 * time.Second
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Bridge renders operations into a browser page. Connect opens the
// page; Apply evaluates one operation through the page's apply hook.
// Connect and Disconnect are serialised by the caller (the dispatcher
// owns the lifecycle); Apply is never called concurrently with itself.
type Bridge struct {
	lc   *bridge.Lifecycle
	opts Options
	lnch *launcher.Launcher
	brw  *rod.Browser
	page *rod.Page
}

var _ bridge.Bridge = (*Bridge)(nil)

// New creates a disconnected bridge. Call Connect to open the page.
func New(opts Options) (*Bridge, error) {
	if opts.PageURL == "" {
		return nil, fmt.Errorf("rodbridge: PageURL is required")
	}
	opts.defaults()
	return &Bridge{opts: opts, lc: bridge.NewLifecycle(opts.Logger)}, nil
}

// State returns the lifecycle state.
func (b *Bridge) State() bridge.State { return b.lc.State() }

// LastReadyAt returns when the bridge last became Ready.
func (b *Bridge) LastReadyAt() time.Time { return b.lc.LastReadyAt() }

// Subscribe returns a lifecycle transition channel.
func (b *Bridge) Subscribe() <-chan bridge.State { return b.lc.Subscribe() }

// Connect launches or attaches to Chrome, opens the render page, waits
// for the apply hook, and transitions to Ready. On any failure the
// bridge drops back to Disconnected with partial resources released.
func (b *Bridge) Connect(ctx context.Context) error {
	log := b.opts.Logger
	b.lc.Transition(bridge.StateConnecting)

	wsURL := b.opts.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			b.lc.Transition(bridge.StateDisconnected)
			return fmt.Errorf("rodbridge: launch: %w", err)
		}
		b.lnch = l
		wsURL = u
		log.Info("rodbridge: launched local chrome", "url", wsURL)
	} else {
		log.Info("rodbridge: connecting to remote chrome", "url", wsURL)
	}

	brw := rod.New().ControlURL(wsURL)
	if err := brw.Connect(); err != nil {
		b.release()
		b.lc.Transition(bridge.StateDisconnected)
		return fmt.Errorf("rodbridge: connect: %w", err)
	}
	b.brw = brw

	page, err := brw.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		b.release()
		b.lc.Transition(bridge.StateDisconnected)
		return fmt.Errorf("rodbridge: create page: %w", err)
	}
	b.page = page

	navCtx, cancel := context.WithTimeout(ctx, b.opts.ReadyTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(b.opts.PageURL); err != nil {
		b.release()
		b.lc.Transition(bridge.StateDisconnected)
		return fmt.Errorf("rodbridge: navigate %s: %w", b.opts.PageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("rodbridge: wait load timeout", "url", b.opts.PageURL, "error", err)
	}

	// The page signals readiness by installing its apply hook. Until it
	// exists, the surface cannot accept operations and the bridge must
	// not report Ready.
	if err := b.awaitHook(navCtx); err != nil {
		b.release()
		b.lc.Transition(bridge.StateDisconnected)
		return err
	}

	b.lc.Transition(bridge.StateReady)
	log.Info("rodbridge: render surface ready", "url", b.opts.PageURL)
	return nil
}

func (b *Bridge) awaitHook(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.ReadyPoll)
	defer ticker.Stop()
	for {
		res, err := b.page.Context(ctx).Eval(
			`() => typeof window.` + applyHook + ` === "function"`)
		if err == nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rodbridge: render page never installed %s: %w", applyHook, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Apply evaluates one operation in the render page. A page-level
// rejection ({ok:false}) is permanent and comes back as a RejectError;
// transport failures come back as ErrConnectionLost, after which the
// bridge is Disconnected and must be reconnected before further use.
func (b *Bridge) Apply(ctx context.Context, op bridge.Operation) error {
	if b.State() != bridge.StateReady {
		return bridge.ErrNotReady
	}

	res, err := b.page.Context(ctx).Eval(
		`(op) => Promise.resolve(window.`+applyHook+`(op)).then(r => r || {ok: true})`, op)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("rodbridge: apply %s: %w", op.ID, bridge.ErrTimeout)
		}
		b.opts.Logger.Warn("rodbridge: eval failed, surface lost", "op", op.ID, "error", err)
		b.release()
		b.lc.Transition(bridge.StateDisconnected)
		return fmt.Errorf("rodbridge: apply %s: %w", op.ID, bridge.ErrConnectionLost)
	}

	if !res.Value.Get("ok").Bool() {
		reason := res.Value.Get("reason").Str()
		if reason == "" {
			reason = "render surface rejected the operation"
		}
		return &bridge.RejectError{Reason: reason}
	}
	return nil
}

// Disconnect closes the page and browser and transitions to
// Disconnected. Safe to call on an already disconnected bridge.
func (b *Bridge) Disconnect() error {
	b.release()
	b.lc.Transition(bridge.StateDisconnected)
	return nil
}

func (b *Bridge) release() {
	if b.page != nil {
		if err := b.page.Close(); err != nil && !isClosedErr(err) {
			b.opts.Logger.Debug("rodbridge: page close", "error", err)
		}
		b.page = nil
	}
	if b.brw != nil {
		if err := b.brw.Close(); err != nil && !isClosedErr(err) {
			b.opts.Logger.Debug("rodbridge: browser close", "error", err)
		}
		b.brw = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
