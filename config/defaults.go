package config

import (
	"os"

	"github.com/spf13/viper"
)

// DefaultDirPermissions is the mode used when creating ~/.warden
const DefaultDirPermissions os.FileMode = 0750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "warden.db")

	// Logging defaults
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.theme", "everforest")
	v.SetDefault("logging.verbosity", 0)

	// Dispatch (task queue infrastructure) defaults
	v.SetDefault("dispatch.workers", 2)
	v.SetDefault("dispatch.poll_interval_seconds", 5)
	v.SetDefault("dispatch.shutdown_timeout_seconds", 30)
	v.SetDefault("dispatch.max_memory_percent", 80.0)
	v.SetDefault("dispatch.max_retries", 2)
	v.SetDefault("dispatch.retry_backoff_seconds", 10)

	// Health monitor defaults: 2-minute passes over the last 24h of work
	v.SetDefault("monitor.interval_seconds", 120)
	v.SetDefault("monitor.window_hours", 24)
	v.SetDefault("monitor.batch_limit", 50)

	// Cleanup sweep defaults.
	// 72h stuck-job cutoff, 24h reclaim window for healthy completions,
	// 14-day forensic retention for failures.
	v.SetDefault("cleanup.stale_interval_minutes", 60)
	v.SetDefault("cleanup.stale_after_hours", 72)
	v.SetDefault("cleanup.finished_interval_minutes", 60)
	v.SetDefault("cleanup.finished_within_hours", 24)
	v.SetDefault("cleanup.failed_interval_hours", 24)
	v.SetDefault("cleanup.failed_after_days", 14)

	// Runtime client defaults
	v.SetDefault("runtime.host", "")
	v.SetDefault("runtime.remove_ops_per_second", 5.0)

	// Cancellation defaults
	v.SetDefault("cancellation.stop_timeout_seconds", 30)

	// Remote compute canceller defaults (disabled until base_url set)
	v.SetDefault("compute.base_url", "")
	v.SetDefault("compute.timeout_seconds", 10)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":2112")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Compute API credentials
	v.BindEnv("compute.api_token", "WARDEN_COMPUTE_API_TOKEN")

	// Database path
	v.BindEnv("database.path", "WARDEN_DATABASE_PATH")

	// Runtime host override
	v.BindEnv("runtime.host", "WARDEN_RUNTIME_HOST")
}
