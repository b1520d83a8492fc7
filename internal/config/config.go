package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	API     APIConfig      `toml:"api"`
	Canvas  CanvasConfig   `toml:"canvas"`
	Replay  ReplayConfig   `toml:"replay"`
	Notify  NotifyConfig   `toml:"notify"`
	Events  EventsConfig   `toml:"events"`
	Library LibraryConfig  `toml:"library"`
	Policy  PolicyConfig   `toml:"policy"`
	Raw     map[string]any `toml:"-"`
	Path    string         `toml:"-"`
}

type APIConfig struct {
	BaseURL          string `toml:"base_url"`
	TimeoutMS        int    `toml:"timeout_ms"`
	HealthIntervalMS int    `toml:"health_interval_ms"`
}

type CanvasConfig struct {
	MinZoom    float64 `toml:"min_zoom"`
	MaxZoom    float64 `toml:"max_zoom"`
	FitMaxZoom float64 `toml:"fit_max_zoom"`
	ZoomStep   float64 `toml:"zoom_step"`
	NodeWidth  float64 `toml:"node_width"`
	NodeHeight float64 `toml:"node_height"`
	Padding    float64 `toml:"padding"`
	MinWidth   float64 `toml:"min_width"`
	MinHeight  float64 `toml:"min_height"`
	CellWidth  float64 `toml:"cell_width"`
	CellHeight float64 `toml:"cell_height"`
	LogPath    string  `toml:"log_path"`
}

type ReplayConfig struct {
	StepDelayMS int `toml:"step_delay_ms"`
}

type NotifyConfig struct {
	LifetimeMS int `toml:"lifetime_ms"`
}

type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Path    string `toml:"path"`
}

type LibraryConfig struct {
	DSN       string `toml:"dsn"`
	Addr      string `toml:"addr"`
	ExportDir string `toml:"export_dir"`
}

// PolicyConfig uses pointers so an explicit false survives defaulting.
type PolicyConfig struct {
	WarnSelfLoops *bool `toml:"warn_self_loops"`
	WarnCycles    *bool `toml:"warn_cycles"`
}

func (p PolicyConfig) SelfLoops() bool { return p.WarnSelfLoops == nil || *p.WarnSelfLoops }
func (p PolicyConfig) Cycles() bool    { return p.WarnCycles == nil || *p.WarnCycles }

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{}.WithDefaults()
}

func (c Config) WithDefaults() Config {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5000"
	}
	if c.API.TimeoutMS <= 0 {
		c.API.TimeoutMS = 10000
	}
	if c.API.HealthIntervalMS <= 0 {
		c.API.HealthIntervalMS = 5000
	}
	if c.Canvas.MinZoom <= 0 {
		c.Canvas.MinZoom = 0.5
	}
	if c.Canvas.MaxZoom <= 0 {
		c.Canvas.MaxZoom = 2.0
	}
	if c.Canvas.FitMaxZoom <= 0 {
		c.Canvas.FitMaxZoom = 1.5
	}
	if c.Canvas.ZoomStep <= 1 {
		c.Canvas.ZoomStep = 1.1
	}
	if c.Canvas.NodeWidth <= 0 {
		c.Canvas.NodeWidth = 180
	}
	if c.Canvas.NodeHeight <= 0 {
		c.Canvas.NodeHeight = 80
	}
	if c.Canvas.Padding <= 0 {
		c.Canvas.Padding = 100
	}
	if c.Canvas.MinWidth <= 0 {
		c.Canvas.MinWidth = 2000
	}
	if c.Canvas.MinHeight <= 0 {
		c.Canvas.MinHeight = 1500
	}
	if c.Canvas.CellWidth <= 0 {
		c.Canvas.CellWidth = 10
	}
	if c.Canvas.CellHeight <= 0 {
		c.Canvas.CellHeight = 20
	}
	if c.Canvas.LogPath == "" {
		c.Canvas.LogPath = "data/canvas.log"
	}
	if c.Replay.StepDelayMS <= 0 {
		c.Replay.StepDelayMS = 800
	}
	if c.Notify.LifetimeMS <= 0 {
		c.Notify.LifetimeMS = 3000
	}
	if c.Events.URL == "" {
		c.Events.URL = c.API.BaseURL
	}
	if c.Events.Path == "" {
		c.Events.Path = "/socket.io/"
	}
	if c.Library.DSN == "" {
		c.Library.DSN = "data/sphere_canvas.db"
	}
	if c.Library.Addr == "" {
		c.Library.Addr = ":8092"
	}
	if c.Library.ExportDir == "" {
		c.Library.ExportDir = "exports"
	}
	return c
}

func (c Config) APITimeout() time.Duration     { return ms(c.API.TimeoutMS) }
func (c Config) HealthInterval() time.Duration { return ms(c.API.HealthIntervalMS) }
func (c Config) StepDelay() time.Duration      { return ms(c.Replay.StepDelayMS) }
func (c Config) NotifyLifetime() time.Duration { return ms(c.Notify.LifetimeMS) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Load reads the TOML file at path. An empty path means ~/.sphere/canvas.toml, which may be absent;
// an explicit path must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	resolved := path
	if !explicit {
		resolved = DefaultPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			cfg.Path = resolved
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg = cfg.WithDefaults()
	cfg.Raw = raw
	cfg.Path = resolved
	return cfg, nil
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sphere/canvas.toml"
	}
	return filepath.Join(home, ".sphere", "canvas.toml")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(path, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Join(home, trimmed), nil
}
