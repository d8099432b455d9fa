// Package config handles process-wide settings, loaded once at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults applied by Load when the config file omits a value.
const (
	DefaultTelemetryIntervalMS  = 500
	DefaultRecentEventsLimit    = 20
	DefaultMaxConcurrentSims    = 2
	DefaultMaxRunsPerScenario   = 3
	DefaultStorageLimitGB       = 10.0
	DefaultSubscriberBuffer     = 100
	DefaultTerminateGracePeriod = 5 * time.Second
)

// defaultCleanupTables are the engine tables carrying simulation_year rows,
// purged of years outside the configured range before each run.
var defaultCleanupTables = []string{
	"fct_workforce_snapshot",
	"fct_yearly_events",
	"int_enrollment_state_accumulator",
	"int_deferral_rate_state_accumulator_v2",
	"int_deferral_escalation_state_accumulator",
	"int_baseline_workforce",
	"int_employee_compensation_by_year",
	"int_employee_state_by_year",
	"int_workforce_snapshot_optimized",
}

// Settings is the process configuration. All values are optional in the
// YAML file and fall back to the defaults above.
type Settings struct {
	// WorkspacesRoot is the directory holding all workspace trees.
	WorkspacesRoot string `yaml:"workspaces_root"`
	// StorageLimitGB caps total workspace storage (observability only).
	StorageLimitGB float64 `yaml:"storage_limit_gb"`
	// TelemetryIntervalMS is the best-effort snapshot publish cadence.
	TelemetryIntervalMS int `yaml:"telemetry_interval_ms"`
	// RecentEventsLimit bounds the recent-event ring in snapshots.
	RecentEventsLimit int `yaml:"recent_events_limit"`
	// MaxConcurrentSimulations caps parallel runs across the process.
	MaxConcurrentSimulations int `yaml:"max_concurrent_simulations"`
	// SubscriberBuffer is the per-subscriber telemetry queue capacity.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	// DefaultConfigPath points at the built-in simulation defaults.
	DefaultConfigPath string `yaml:"default_config_path"`
	// MaxRunsPerScenario is the retention cap (default 3; negative values
	// disable retention entirely).
	MaxRunsPerScenario int `yaml:"max_runs_per_scenario"`

	Engine  EngineConfig  `yaml:"engine"`
	Adapter AdapterConfig `yaml:"adapter"`
	Export  ExportConfig  `yaml:"export"`
}

// EngineConfig describes how to invoke the external simulator.
type EngineConfig struct {
	// Command is the executable (e.g. "planalign" or a python interpreter).
	Command string `yaml:"command"`
	// Args are arguments inserted before the "simulate" verb
	// (e.g. ["-m", "planalign_cli.main"] for a module invocation).
	Args []string `yaml:"args"`
	// WorkingDir is the engine's working directory.
	WorkingDir string `yaml:"working_dir"`
	// SeedsDir is the engine's global seeds directory; scenario seed CSVs
	// are mirrored here because the engine reads globals.
	SeedsDir string `yaml:"seeds_dir"`
	// DatabaseDriver is the database/sql driver name used for the engine's
	// result databases (default "duckdb").
	DatabaseDriver string `yaml:"database_driver"`
	// ProjectDatabase is the optional project-global fallback database.
	ProjectDatabase string `yaml:"project_database"`
	// CleanupTables lists tables purged of out-of-range simulation years.
	CleanupTables []string `yaml:"cleanup_tables"`
	// TerminateGrace is how long a terminated engine gets before SIGKILL.
	TerminateGrace Duration `yaml:"terminate_grace"`
}

// AdapterConfig selects an optional run-completed push adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // "", "webhook", or "redis"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ExportConfig holds bundle export defaults.
type ExportConfig struct {
	// OutputDir receives exported bundles (default: os temp dir).
	OutputDir string `yaml:"output_dir"`
	// S3 optionally uploads finished bundles.
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the optional bundle upload destination.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// applyDefaults fills zero values with process defaults.
func (s *Settings) applyDefaults() {
	if s.WorkspacesRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		s.WorkspacesRoot = filepath.Join(home, ".planalign", "workspaces")
	}
	if s.StorageLimitGB <= 0 {
		s.StorageLimitGB = DefaultStorageLimitGB
	}
	if s.TelemetryIntervalMS <= 0 {
		s.TelemetryIntervalMS = DefaultTelemetryIntervalMS
	}
	if s.RecentEventsLimit <= 0 {
		s.RecentEventsLimit = DefaultRecentEventsLimit
	}
	if s.MaxConcurrentSimulations <= 0 {
		s.MaxConcurrentSimulations = DefaultMaxConcurrentSims
	}
	if s.SubscriberBuffer <= 0 {
		s.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if s.MaxRunsPerScenario == 0 {
		s.MaxRunsPerScenario = DefaultMaxRunsPerScenario
	} else if s.MaxRunsPerScenario < 0 {
		s.MaxRunsPerScenario = 0
	}
	if s.Engine.Command == "" {
		s.Engine.Command = "planalign"
	}
	if s.Engine.DatabaseDriver == "" {
		s.Engine.DatabaseDriver = "duckdb"
	}
	if len(s.Engine.CleanupTables) == 0 {
		s.Engine.CleanupTables = append([]string(nil), defaultCleanupTables...)
	}
	if s.Engine.TerminateGrace.Duration <= 0 {
		s.Engine.TerminateGrace.Duration = DefaultTerminateGracePeriod
	}
}
