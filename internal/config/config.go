// Package config loads simulator settings: defaults, then an optional YAML or
// JSON file, then MLV_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mlvisuals/internal/model"
)

type Config struct {
	Sweep         SweepConfig         `json:"sweep" yaml:"sweep"`
	Fixed         FixedConfig         `json:"fixed" yaml:"fixed"`
	Limits        LimitsConfig        `json:"limits" yaml:"limits"`
	Scheduler     SchedulerConfig     `json:"scheduler" yaml:"scheduler"`
	Memory        MemoryConfig        `json:"memory" yaml:"memory"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Server        ServerConfig        `json:"server" yaml:"server"`
}

// SweepConfig is the default learning-curve range.
type SweepConfig struct {
	From    int    `json:"from" yaml:"from"`
	To      int    `json:"to" yaml:"to"`
	Step    int    `json:"step" yaml:"step"`
	Runs    int    `json:"runs" yaml:"runs"`
	Feature string `json:"feature" yaml:"feature"`
}

type FixedConfig struct {
	N    int `json:"n" yaml:"n"`
	Runs int `json:"runs" yaml:"runs"`
}

// LimitsConfig bounds what a request may ask for.
type LimitsConfig struct {
	MinN    int `json:"min_n" yaml:"min_n"`
	MaxN    int `json:"max_n" yaml:"max_n"`
	MinRuns int `json:"min_runs" yaml:"min_runs"`
	MaxRuns int `json:"max_runs" yaml:"max_runs"`
}

type SchedulerConfig struct {
	// TickRate caps loop tasks per second. 0 disables pacing.
	TickRate float64 `json:"tick_rate" yaml:"tick_rate"`
}

type MemoryConfig struct {
	InitialPages int `json:"initial_pages" yaml:"initial_pages"`
	MaxPages     int `json:"max_pages" yaml:"max_pages"`
	MaxInstances int `json:"max_instances" yaml:"max_instances"`
}

type StorageConfig struct {
	Kind         string `json:"kind" yaml:"kind"`
	DBPath       string `json:"db_path" yaml:"db_path"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`
}

type ObservabilityConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level"`
	LogFormat      string `json:"log_format" yaml:"log_format"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	// TraceExporter is "none" or "stdout".
	TraceExporter string `json:"trace_exporter" yaml:"trace_exporter"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

func Default() Config {
	return Config{
		Sweep:     SweepConfig{From: 10, To: 1000, Step: 10, Runs: 300, Feature: "linear"},
		Fixed:     FixedConfig{N: 20, Runs: 50},
		Limits:    LimitsConfig{MinN: 1, MaxN: 10000, MinRuns: 1, MaxRuns: 10000},
		Scheduler: SchedulerConfig{TickRate: 0},
		Memory:    MemoryConfig{InitialPages: 1, MaxPages: 256, MaxInstances: 64},
		Storage: StorageConfig{
			Kind:         "memory",
			DBPath:       "mlvisuals.db",
			ArtifactsDir: "mlvisuals_runs",
		},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "text", MetricsEnabled: true, TraceExporter: "none"},
		Server:        ServerConfig{Addr: ":8080"},
	}
}

// Load merges defaults, the file at path (if any) and the environment, then
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setInt("MLV_SWEEP_FROM", &cfg.Sweep.From)
	setInt("MLV_SWEEP_TO", &cfg.Sweep.To)
	setInt("MLV_SWEEP_STEP", &cfg.Sweep.Step)
	setInt("MLV_SWEEP_RUNS", &cfg.Sweep.Runs)
	setString("MLV_FEATURE", &cfg.Sweep.Feature)
	setInt("MLV_FIXED_N", &cfg.Fixed.N)
	setInt("MLV_FIXED_RUNS", &cfg.Fixed.Runs)
	setInt("MLV_MAX_PAGES", &cfg.Memory.MaxPages)
	setInt("MLV_MAX_INSTANCES", &cfg.Memory.MaxInstances)
	if v := getenv("MLV_TICK_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduler.TickRate = f
		}
	}
	setString("MLV_STORE", &cfg.Storage.Kind)
	setString("MLV_DB_PATH", &cfg.Storage.DBPath)
	setString("MLV_ARTIFACTS_DIR", &cfg.Storage.ArtifactsDir)
	setString("MLV_LOG_LEVEL", &cfg.Observability.LogLevel)
	setString("MLV_LOG_FORMAT", &cfg.Observability.LogFormat)
	if v := getenv("MLV_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.MetricsEnabled = b
		}
	}
	setString("MLV_TRACE_EXPORTER", &cfg.Observability.TraceExporter)
	setString("MLV_SERVER_ADDR", &cfg.Server.Addr)
}

func (c Config) Validate() error {
	if c.Limits.MinN < 1 || c.Limits.MaxN < c.Limits.MinN {
		return fmt.Errorf("limits.min_n must be >= 1 and <= limits.max_n")
	}
	if c.Limits.MinRuns < 1 || c.Limits.MaxRuns < c.Limits.MinRuns {
		return fmt.Errorf("limits.min_runs must be >= 1 and <= limits.max_runs")
	}
	if c.Sweep.Step < 1 {
		return fmt.Errorf("sweep.step must be >= 1")
	}
	if c.Sweep.From > c.Sweep.To {
		return fmt.Errorf("sweep.from must be <= sweep.to")
	}
	if c.Sweep.Runs < 1 || c.Fixed.Runs < 1 || c.Fixed.N < 1 {
		return fmt.Errorf("runs and n must be >= 1")
	}
	if _, err := model.ParseFeatureKind(c.Sweep.Feature); err != nil {
		return err
	}
	if c.Scheduler.TickRate < 0 {
		return fmt.Errorf("scheduler.tick_rate must be >= 0")
	}
	if c.Memory.InitialPages < 1 || c.Memory.MaxPages < c.Memory.InitialPages {
		return fmt.Errorf("memory.initial_pages must be >= 1 and <= memory.max_pages")
	}
	if c.Memory.MaxInstances < 1 {
		return fmt.Errorf("memory.max_instances must be >= 1")
	}
	switch c.Storage.Kind {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.kind must be memory or sqlite, got %q", c.Storage.Kind)
	}
	if _, err := parseLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	switch c.Observability.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("observability.log_format must be text or json, got %q", c.Observability.LogFormat)
	}
	switch c.Observability.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("observability.trace_exporter must be none or stdout, got %q", c.Observability.TraceExporter)
	}
	return nil
}

// NewLogger builds the process logger described by c.
func NewLogger(c ObservabilityConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("observability.log_level: %w", err)
	}
	return level, nil
}
