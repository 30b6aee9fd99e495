// Package config loads moodcanvas settings from a TOML file, an optional
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/interact"
)

// Environment overrides.
const (
	EnvLocalURL  = "MOODCANVAS_LOCAL_URL"
	EnvLogLevel  = "MOODCANVAS_LOG_LEVEL"
	EnvRateLimit = "MOODCANVAS_RATE_LIMIT"
	EnvConfig    = "MOODCANVAS_CONFIG"
)

// Config holds moodcanvas configuration.
type Config struct {
	Analysis AnalysisConfig `toml:"analysis"`
	Log      LogConfig      `toml:"log"`
	Editor   EditorConfig   `toml:"editor"`
}

// AnalysisConfig selects the model server.
type AnalysisConfig struct {
	Provider          string   `toml:"provider" validate:"oneof=local"`
	LocalURL          string   `toml:"local_url" validate:"required,url"`
	VisionModel       string   `toml:"vision_model" validate:"required"`
	TextModel         string   `toml:"text_model" validate:"required"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second" validate:"gt=0"`
	Concurrency       int      `toml:"concurrency" validate:"gte=1,lte=32"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
	File   string `toml:"file"` // empty means stderr; the editor always logs to a file
}

// EditorConfig tunes the terminal editor.
type EditorConfig struct {
	CellWidth     float64 `toml:"cell_width" validate:"gt=0"`  // canvas units per terminal column
	CellHeight    float64 `toml:"cell_height" validate:"gt=0"` // canvas units per terminal row
	AutoPanMargin float64 `toml:"autopan_margin" validate:"gte=0"`
	AutoPanSpeed  float64 `toml:"autopan_speed" validate:"gte=0"`
}

// Duration is a time.Duration written as a string such as "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Provider:          "local",
			LocalURL:          analysis.DefaultBaseURL,
			VisionModel:       analysis.DefaultVisionModel,
			TextModel:         analysis.DefaultTextModel,
			Timeout:           Duration{analysis.DefaultTimeout},
			RequestsPerSecond: analysis.DefaultRateLimit,
			Concurrency:       4,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Editor: EditorConfig{
			CellWidth:     16,
			CellHeight:    32,
			AutoPanMargin: interact.DefaultAutoPanMargin,
			AutoPanSpeed:  interact.DefaultAutoPanSpeed,
		},
	}
}

// Dir returns the moodcanvas config directory path.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "moodcanvas")
}

// Path returns the config file path. MOODCANVAS_CONFIG overrides it.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config at path (Path() when empty), loads .env from the
// working directory if present, applies environment overrides and
// validates the result. A missing config file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLocalURL); v != "" {
		c.Analysis.LocalURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		c.Analysis.RequestsPerSecond = rps
	}
	return nil
}

// Save writes the config to path (Path() when empty).
func Save(cfg *Config, path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists(path string) error {
	if path == "" {
		path = Path()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return Save(Default(), path)
}

// ClientOptions returns the analysis client options for c.
func (c *Config) ClientOptions(log *zap.Logger) []analysis.ClientOption {
	a := c.Analysis
	return []analysis.ClientOption{
		analysis.WithBaseURL(a.LocalURL),
		analysis.WithModels(a.VisionModel, a.TextModel),
		analysis.WithRateLimit(a.RequestsPerSecond),
		analysis.WithHTTPClient(&http.Client{Timeout: a.Timeout.Duration}),
		analysis.WithLogger(log),
	}
}

// MachineOptions returns the interaction options for the editor.
func (c *Config) MachineOptions() interact.Options {
	return interact.Options{
		AutoPanMargin: c.Editor.AutoPanMargin,
		AutoPanSpeed:  c.Editor.AutoPanSpeed,
	}
}
