package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/canvasd/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvasd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreComplete(t *testing.T) {
	cfg := config.Default()
	if cfg.Bridge.Mode != "loopback" {
		t.Fatalf("bridge mode = %q, want loopback", cfg.Bridge.Mode)
	}
	if cfg.Dispatch.ApplyTimeout != 10*time.Second || cfg.Dispatch.MaxAttempts != 5 {
		t.Fatalf("dispatch defaults = %+v", cfg.Dispatch)
	}
	if cfg.Canvas.GridUnit != 8 {
		t.Fatalf("grid unit = %v, want 8", cfg.Canvas.GridUnit)
	}
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
bridge:
  mode: browser
  page_url: http://localhost:5173/canvas
dispatch:
  max_attempts: 2
journal:
  path: /tmp/canvas.db
admin:
  listen: 127.0.0.1:7171
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.Mode != "browser" || cfg.Bridge.PageURL != "http://localhost:5173/canvas" {
		t.Fatalf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Dispatch.MaxAttempts != 2 {
		t.Fatalf("max attempts = %d, want 2", cfg.Dispatch.MaxAttempts)
	}
	// Unset fields still get defaults.
	if cfg.Dispatch.ApplyTimeout != 10*time.Second {
		t.Fatalf("apply timeout = %v, want default 10s", cfg.Dispatch.ApplyTimeout)
	}
	if cfg.Admin.Listen != "127.0.0.1:7171" {
		t.Fatalf("admin listen = %q", cfg.Admin.Listen)
	}
}

func TestLoadRejectsBrowserModeWithoutPage(t *testing.T) {
	path := writeConfig(t, "bridge:\n  mode: browser\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("browser mode without page_url accepted")
	}
}

func TestLoadRejectsUnknownBridgeMode(t *testing.T) {
	path := writeConfig(t, "bridge:\n  mode: carrier-pigeon\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("unknown bridge mode accepted")
	}
}
