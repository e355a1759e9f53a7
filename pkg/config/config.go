// Package config loads ecotrace settings from an optional YAML file and
// ECO_* environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ja7ad/ecotrace/pkg/profiler"
)

// Lister names.
const (
	ListerProcfs = "procfs"
	ListerPS     = "ps"
)

type Config struct {
	Lister        string   `yaml:"lister"`
	OutputDir     string   `yaml:"output_dir"`
	RetentionDays int      `yaml:"retention_days"`
	Database      Database `yaml:"database"`
	Profiler      Profiler `yaml:"profiler"`
	Sampling      Sampling `yaml:"sampling"`
	Grid          Grid     `yaml:"grid"`
	Server        Server   `yaml:"server"`
	Log           Log      `yaml:"log"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Profiler struct {
	Path             string `yaml:"path"`
	TimeoutBufferSec int    `yaml:"timeout_buffer_sec"`
	GraceMs          int    `yaml:"grace_ms"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
}

type Sampling struct {
	Resources     []string `yaml:"resources"`
	IntervalMs    int      `yaml:"interval_ms"`
	DurationSec   int      `yaml:"duration_sec"`
	ProcessLimit  int      `yaml:"process_limit"`
	Workers       int      `yaml:"workers"`
	CyclePauseSec int      `yaml:"cycle_pause_sec"`
	EmptyRetrySec int      `yaml:"empty_retry_sec"`
	Enabled       bool     `yaml:"enabled"`
}

type Grid struct {
	Enabled           bool   `yaml:"enabled"`
	Zone              string `yaml:"zone"`
	Token             string `yaml:"token"`
	BaseURL           string `yaml:"base_url"`
	PollIntervalMin   int    `yaml:"poll_interval_min"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Lister:        ListerProcfs,
		OutputDir:     "./ecofloc_results",
		RetentionDays: 30,
		Database:      Database{Path: "./carbon.db"},
		Profiler: Profiler{
			Path:             profiler.DefaultTool,
			TimeoutBufferSec: 5,
			GraceMs:          1000,
		},
		Sampling: Sampling{
			Resources:     []string{"cpu", "ram"},
			IntervalMs:    1000,
			DurationSec:   5,
			ProcessLimit:  10,
			CyclePauseSec: 10,
			EmptyRetrySec: 5,
			Enabled:       true,
		},
		Grid: Grid{
			Enabled:           true,
			Zone:              "FR",
			BaseURL:           "https://api.electricitymap.org/v3",
			PollIntervalMin:   15,
			RequestsPerMinute: 30,
		},
		Server: Server{Addr: ":8000"},
		Log:    Log{Level: "info"},
	}
}

// LoadConfig reads path (optional), applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Lister == "" {
		c.Lister = d.Lister
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Profiler.Path == "" {
		c.Profiler.Path = d.Profiler.Path
	}
	if c.Profiler.GraceMs <= 0 {
		c.Profiler.GraceMs = d.Profiler.GraceMs
	}
	if c.Profiler.MaxConcurrent <= 0 {
		c.Profiler.MaxConcurrent = runtime.NumCPU()
	}
	if len(c.Sampling.Resources) == 0 {
		c.Sampling.Resources = d.Sampling.Resources
	}
	if c.Sampling.Workers <= 0 {
		c.Sampling.Workers = runtime.NumCPU()
	}
	if c.Sampling.EmptyRetrySec <= 0 {
		c.Sampling.EmptyRetrySec = d.Sampling.EmptyRetrySec
	}
	if c.Grid.BaseURL == "" {
		c.Grid.BaseURL = d.Grid.BaseURL
	}
	if c.Grid.PollIntervalMin <= 0 {
		c.Grid.PollIntervalMin = d.Grid.PollIntervalMin
	}
	if c.Grid.RequestsPerMinute <= 0 {
		c.Grid.RequestsPerMinute = d.Grid.RequestsPerMinute
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// applyEnv overlays ECO_* variables. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	if v, ok := lookup("ECO_RESOURCES"); ok && strings.TrimSpace(v) != "" {
		var rs []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				rs = append(rs, r)
			}
		}
		c.Sampling.Resources = rs
	}
	num("ECO_INTERVAL_MS", &c.Sampling.IntervalMs)
	num("ECO_DURATION_S", &c.Sampling.DurationSec)
	num("ECO_MAX_PIDS", &c.Sampling.ProcessLimit)
	num("ECO_WORKERS", &c.Sampling.Workers)
	str("ECO_OUTPUT_DIR", &c.OutputDir)
	str("ECO_DB_PATH", &c.Database.Path)
	str("ECO_TOOL", &c.Profiler.Path)
	str("ECO_ZONE", &c.Grid.Zone)
	str("ECO_ADDR", &c.Server.Addr)
	str("ELECTRICITYMAPS_TOKEN", &c.Grid.Token)
	return errs
}

func (c *Config) validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.Lister {
	case ListerProcfs, ListerPS:
	default:
		add("lister must be %q or %q, got %q", ListerProcfs, ListerPS, c.Lister)
	}
	if _, err := profiler.ParseResources(strings.Join(c.Sampling.Resources, ",")); err != nil {
		add("sampling.resources: %v", err)
	}
	if c.Sampling.IntervalMs <= 0 {
		add("sampling.interval_ms must be positive")
	}
	if c.Sampling.DurationSec <= 0 {
		add("sampling.duration_sec must be positive")
	}
	if c.Sampling.ProcessLimit <= 0 {
		add("sampling.process_limit must be positive")
	}
	if c.Sampling.CyclePauseSec < 0 {
		add("sampling.cycle_pause_sec cannot be negative")
	}
	if c.Profiler.TimeoutBufferSec < 0 {
		add("profiler.timeout_buffer_sec cannot be negative")
	}
	if c.Grid.Enabled && strings.TrimSpace(c.Grid.Zone) == "" {
		add("grid.zone cannot be empty when grid is enabled")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	return errs
}

// Resources returns the parsed sampling resources.
func (c *Config) Resources() []profiler.Resource {
	rs, _ := profiler.ParseResources(strings.Join(c.Sampling.Resources, ","))
	return rs
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sampling.IntervalMs) * time.Millisecond
}

func (c *Config) Duration() time.Duration {
	return time.Duration(c.Sampling.DurationSec) * time.Second
}

func (c *Config) TimeoutBuffer() time.Duration {
	return time.Duration(c.Profiler.TimeoutBufferSec) * time.Second
}

func (c *Config) Grace() time.Duration {
	return time.Duration(c.Profiler.GraceMs) * time.Millisecond
}

func (c *Config) CyclePause() time.Duration {
	return time.Duration(c.Sampling.CyclePauseSec) * time.Second
}

func (c *Config) EmptyRetry() time.Duration {
	return time.Duration(c.Sampling.EmptyRetrySec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Grid.PollIntervalMin) * time.Minute
}
