// Package config loads canvasd configuration from a YAML file with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all canvasd configuration.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Canvas   CanvasConfig   `yaml:"canvas"`
	Journal  JournalConfig  `yaml:"journal"`
	Admin    AdminConfig    `yaml:"admin"`
	LogLevel string         `yaml:"log_level"`
}

// BridgeConfig selects and configures the render surface bridge.
type BridgeConfig struct {
	// Mode is "loopback" (in-process, no browser) or "browser".
	Mode string `yaml:"mode"`
	// PageURL is the render page opened in browser mode.
	PageURL string `yaml:"page_url"`
	// RemoteURL attaches to an external Chrome instead of launching one.
	RemoteURL string `yaml:"remote_url"`
	// ReadyTimeout bounds how long Connect waits for the page hook.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// DispatchConfig controls the operation queue.
type DispatchConfig struct {
	ApplyTimeout  time.Duration `yaml:"apply_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	HighWatermark int           `yaml:"high_watermark"`
}

// CanvasConfig controls canvas semantics.
type CanvasConfig struct {
	// GridUnit is the layout grid in canvas units.
	GridUnit float64 `yaml:"grid_unit"`
	// DeliveryTimeout bounds template delivery waits.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// JournalConfig controls operation persistence.
type JournalConfig struct {
	// Path is the SQLite file. Empty disables the journal.
	Path string `yaml:"path"`
}

// AdminConfig controls the read-only HTTP admin surface.
type AdminConfig struct {
	// Listen is the address of the admin server. Empty disables it.
	Listen string `yaml:"listen"`
}

func (c *Config) defaults() {
	if c.Bridge.Mode == "" {
		c.Bridge.Mode = "loopback"
	}
	if c.Bridge.ReadyTimeout <= 0 {
		c.Bridge.ReadyTimeout = 30 * time.Second
	}
	if c.Dispatch.ApplyTimeout <= 0 {
		c.Dispatch.ApplyTimeout = 10 * time.Second
	}
	if c.Dispatch.MaxAttempts <= 0 {
		c.Dispatch.MaxAttempts = 5
	}
	if c.Dispatch.HighWatermark <= 0 {
		c.Dispatch.HighWatermark = 256
	}
	if c.Canvas.GridUnit <= 0 {
		c.Canvas.GridUnit = 8
	}
	if c.Canvas.DeliveryTimeout <= 0 {
		c.Canvas.DeliveryTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Bridge.Mode {
	case "loopback":
	case "browser":
		if c.Bridge.PageURL == "" {
			return fmt.Errorf("config: bridge.page_url is required in browser mode")
		}
	default:
		return fmt.Errorf("config: unknown bridge.mode %q", c.Bridge.Mode)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// Load reads a YAML config file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
