// Command canvasd is the canvas synchronization daemon. It serves the
// agent-facing tools over MCP stdio, keeps the authoritative canvas
// state in memory, journals accepted operations to SQLite, and delivers
// them in sequence order to a render surface (a browser page or an
// in-process loopback).
//
// Usage:
//
//	canvasd -config canvasd.yaml
//	canvasd -bridge browser -page http://localhost:5173/canvas
//	canvasd -journal canvas.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/canvasd/admin"
	"github.com/hazyhaar/canvasd/bridge"
	"github.com/hazyhaar/canvasd/bridge/rodbridge"
	"github.com/hazyhaar/canvasd/canvas"
	"github.com/hazyhaar/canvasd/config"
	"github.com/hazyhaar/canvasd/dbopen"
	"github.com/hazyhaar/canvasd/dispatch"
	"github.com/hazyhaar/canvasd/journal"
	"github.com/hazyhaar/canvasd/tools"
)

func main() {
	configPath := flag.String("config", "", "path to canvasd.yaml config file")
	listen := flag.String("listen", "", "admin HTTP listen address (overrides config)")
	journalPath := flag.String("journal", "", "SQLite journal path (overrides config)")
	bridgeMode := flag.String("bridge", "", "bridge mode: loopback or browser (overrides config)")
	pageURL := flag.String("page", "", "render page URL for browser mode (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "canvasd:", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Admin.Listen = *listen
	}
	if *journalPath != "" {
		cfg.Journal.Path = *journalPath
	}
	if *bridgeMode != "" {
		cfg.Bridge.Mode = *bridgeMode
	}
	if *pageURL != "" {
		cfg.Bridge.PageURL = *pageURL
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout carries the MCP protocol; logs must go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("canvasd: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	store := canvas.NewStore(canvas.WithStoreLogger(logger))

	// Journal, if configured. Replay restores the authoritative state
	// before the dispatcher relay is attached, so replayed commands are
	// not re-journaled or re-enqueued; render pages bootstrap from the
	// admin /state snapshot and only consume operations from there on.
	var jnl *journal.J
	if cfg.Journal.Path != "" {
		db, err := dbopen.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		jnl = journal.New(db)
		if err := jnl.EnsureTable(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		if err := journal.Rebuild(ctx, jnl, store); err != nil {
			return fmt.Errorf("journal replay: %w", err)
		}
		n, err := jnl.Len(ctx)
		if err == nil && n > 0 {
			logger.Info("canvasd: state restored from journal", "operations", n, "version", store.Version())
		}
	}

	brg, err := newBridge(cfg, logger)
	if err != nil {
		return err
	}
	defer brg.Disconnect()

	dispOpts := dispatch.Options{
		ApplyTimeout:  cfg.Dispatch.ApplyTimeout,
		MaxAttempts:   cfg.Dispatch.MaxAttempts,
		HighWatermark: cfg.Dispatch.HighWatermark,
		Logger:        logger,
	}
	if jnl != nil {
		dispOpts.OnAccept = func(op bridge.Operation) {
			if err := jnl.Append(context.Background(), op); err != nil {
				logger.Error("canvasd: journal append failed", "op", op.ID, "error", err)
			}
		}
	}
	disp := dispatch.New(brg, dispOpts)

	svc := tools.NewService(store, disp, tools.Options{
		GridUnit:        cfg.Canvas.GridUnit,
		DeliveryTimeout: cfg.Canvas.DeliveryTimeout,
		Logger:          logger,
	})

	go disp.Run(ctx)
	go superviseBridge(ctx, brg, logger)

	if cfg.Admin.Listen != "" {
		srv := &http.Server{
			Addr:    cfg.Admin.Listen,
			Handler: admin.NewRouter(store, disp, brg, admin.Options{GridUnit: cfg.Canvas.GridUnit, Logger: logger}),
		}
		go func() {
			logger.Info("canvasd: admin listening", "addr", cfg.Admin.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("canvasd: admin server", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "canvasd", Version: "0.3.0"}, nil)
	tools.Register(mcpSrv, svc)

	logger.Info("canvasd: serving MCP on stdio",
		"bridge", cfg.Bridge.Mode, "journal", cfg.Journal.Path != "", "admin", cfg.Admin.Listen)
	if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func newBridge(cfg *config.Config, logger *slog.Logger) (bridge.Bridge, error) {
	switch cfg.Bridge.Mode {
	case "browser":
		return rodbridge.New(rodbridge.Options{
			PageURL:      cfg.Bridge.PageURL,
			RemoteURL:    cfg.Bridge.RemoteURL,
			ReadyTimeout: cfg.Bridge.ReadyTimeout,
			Logger:       logger,
		})
	default:
		return bridge.NewLoopback(bridge.WithLoopbackLogger(logger)), nil
	}
}

// superviseBridge owns the bridge lifecycle: the initial connect and
// reconnects after a lost surface, with exponential backoff. The
// dispatcher holds undelivered operations while the bridge is down and
// resumes on the Ready transition.
func superviseBridge(ctx context.Context, brg bridge.Bridge, logger *slog.Logger) {
	states := brg.Subscribe()
	backoff := time.Second

	connect := func() {
		for ctx.Err() == nil {
			err := brg.Connect(ctx)
			if err == nil {
				backoff = time.Second
				return
			}
			logger.Warn("canvasd: bridge connect failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}

	connect()
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-states:
			// Stale Disconnected events queue up during a failed connect
			// loop; only the current state decides whether to reconnect.
			if st == bridge.StateDisconnected && brg.State() == bridge.StateDisconnected {
				connect()
			}
		}
	}
}
