// Package config provides warden's layered TOML configuration:
// built-in defaults < system file < user file < project file < WARDEN_* env vars.
package config

import (
	"fmt"
	"time"
)

// Config represents the core warden configuration
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
	Runtime      RuntimeConfig      `mapstructure:"runtime"`
	Cancellation CancellationConfig `mapstructure:"cancellation"`
	Compute      ComputeConfig      `mapstructure:"compute"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	JSON      bool   `mapstructure:"json"`
	Theme     string `mapstructure:"theme"`     // Color theme: gruvbox, everforest
	Verbosity int    `mapstructure:"verbosity"` // Baseline verbosity, same scale as -v counts
}

// DispatchConfig configures the task queue worker pool
type DispatchConfig struct {
	Workers                int     `mapstructure:"workers"`                  // Number of concurrent workers (default: 2)
	PollIntervalSeconds    int     `mapstructure:"poll_interval_seconds"`    // How often workers check for tasks (default: 5)
	ShutdownTimeoutSeconds int     `mapstructure:"shutdown_timeout_seconds"` // Graceful stop wait (default: 30)
	MaxMemoryPercent       float64 `mapstructure:"max_memory_percent"`       // Skip dequeue above this system memory usage (default: 80)
	MaxRetries             int     `mapstructure:"max_retries"`              // Retry attempts for retryable task failures (default: 2)
	RetryBackoffSeconds    int     `mapstructure:"retry_backoff_seconds"`    // Base backoff between retries (default: 10)
}

// MonitorConfig configures the execution health monitor
type MonitorConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"` // Pass frequency (default: 120)
	WindowHours     int `mapstructure:"window_hours"`     // Active-execution lookback window (default: 24)
	BatchLimit      int `mapstructure:"batch_limit"`      // Max executions per pass (default: 50)
}

// CleanupConfig configures the three reclamation sweeps
type CleanupConfig struct {
	StaleIntervalMinutes    int `mapstructure:"stale_interval_minutes"`    // Sweep frequency (default: 60)
	StaleAfterHours         int `mapstructure:"stale_after_hours"`         // Force-fail executions started before now-this (default: 72)
	FinishedIntervalMinutes int `mapstructure:"finished_interval_minutes"` // Sweep frequency (default: 60)
	FinishedWithinHours     int `mapstructure:"finished_within_hours"`     // Reclaim FINISHED resources ended within this (default: 24)
	FailedIntervalHours     int `mapstructure:"failed_interval_hours"`     // Sweep frequency (default: 24)
	FailedAfterDays         int `mapstructure:"failed_after_days"`         // Reclaim FAILED resources ended before now-this (default: 14)
}

// RuntimeConfig configures the container runtime client
type RuntimeConfig struct {
	Host            string  `mapstructure:"host"`                  // Docker host; empty = environment defaults
	RemoveOpsPerSec float64 `mapstructure:"remove_ops_per_second"` // Rate limit on removals (default: 5)
}

// CancellationConfig configures the cancellation coordinator
type CancellationConfig struct {
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds"` // Runtime stop round-trip bound (default: 30)
}

// ComputeConfig configures the remote compute-task canceller
type ComputeConfig struct {
	BaseURL        string `mapstructure:"base_url"`        // Empty disables remote-task cancellation
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Per-request timeout (default: 10)
	APIToken       string `mapstructure:"api_token"`       // Bearer token (env: WARDEN_COMPUTE_API_TOKEN)
}

// MetricsConfig configures the prometheus listener
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"` // default ":2112"
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "warden.db" // Fallback default
	}
	return c.Database.Path
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Logging.Theme == "" {
		return "everforest"
	}
	return c.Logging.Theme
}

// PollInterval returns the worker poll interval as a duration
func (c DispatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RetryBackoff returns the base retry backoff as a duration
func (c DispatchConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// Interval returns the monitor pass interval as a duration
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Window returns the active-execution window as a duration
func (c MonitorConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// StaleAfter returns the stale cutoff distance as a duration
func (c CleanupConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHours) * time.Hour
}

// FinishedWithin returns the finished-reclaim window as a duration
func (c CleanupConfig) FinishedWithin() time.Duration {
	return time.Duration(c.FinishedWithinHours) * time.Hour
}

// FailedAfter returns the failed-reclaim cutoff distance as a duration
func (c CleanupConfig) FailedAfter() time.Duration {
	return time.Duration(c.FailedAfterDays) * 24 * time.Hour
}

// StopTimeout returns the cancellation stop round-trip bound as a duration
func (c CancellationConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Dispatch: {Workers: %d}, Monitor: {Interval: %ds}}",
		c.Database.Path, c.Dispatch.Workers, c.Monitor.IntervalSeconds)
}
