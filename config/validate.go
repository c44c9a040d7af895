package config

import "github.com/wardenhq/warden/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "warden.db" per defaults.go

	// Dispatch workers: 0 = no background workers, negative = invalid
	if c.Dispatch.Workers < 0 {
		return errors.Newf("dispatch.workers must be >= 0, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.PollIntervalSeconds <= 0 {
		return errors.Newf("dispatch.poll_interval_seconds must be > 0, got %d", c.Dispatch.PollIntervalSeconds)
	}
	if c.Dispatch.MaxMemoryPercent < 0 || c.Dispatch.MaxMemoryPercent > 100 {
		return errors.Newf("dispatch.max_memory_percent must be in [0, 100], got %f", c.Dispatch.MaxMemoryPercent)
	}
	if c.Dispatch.MaxRetries < 0 {
		return errors.Newf("dispatch.max_retries must be >= 0, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.RetryBackoffSeconds < 0 {
		return errors.Newf("dispatch.retry_backoff_seconds must be >= 0, got %d", c.Dispatch.RetryBackoffSeconds)
	}

	// Monitor: 0 interval disables the monitor, negative = invalid
	if c.Monitor.IntervalSeconds < 0 {
		return errors.Newf("monitor.interval_seconds must be >= 0, got %d", c.Monitor.IntervalSeconds)
	}
	if c.Monitor.WindowHours <= 0 {
		return errors.Newf("monitor.window_hours must be > 0, got %d", c.Monitor.WindowHours)
	}
	if c.Monitor.BatchLimit <= 0 {
		return errors.Newf("monitor.batch_limit must be > 0, got %d", c.Monitor.BatchLimit)
	}

	// Cleanup cutoffs must be positive: a zero cutoff would reclaim everything
	if c.Cleanup.StaleAfterHours <= 0 {
		return errors.Newf("cleanup.stale_after_hours must be > 0, got %d", c.Cleanup.StaleAfterHours)
	}
	if c.Cleanup.FinishedWithinHours <= 0 {
		return errors.Newf("cleanup.finished_within_hours must be > 0, got %d", c.Cleanup.FinishedWithinHours)
	}
	if c.Cleanup.FailedAfterDays <= 0 {
		return errors.Newf("cleanup.failed_after_days must be > 0, got %d", c.Cleanup.FailedAfterDays)
	}

	// Runtime
	if c.Runtime.RemoveOpsPerSec <= 0 {
		return errors.Newf("runtime.remove_ops_per_second must be > 0, got %f", c.Runtime.RemoveOpsPerSec)
	}

	// Cancellation stop timeout bounds the only blocking call in the core
	if c.Cancellation.StopTimeoutSeconds <= 0 {
		return errors.Newf("cancellation.stop_timeout_seconds must be > 0, got %d", c.Cancellation.StopTimeoutSeconds)
	}

	// Validate compute configuration only when enabled
	if c.Compute.BaseURL != "" {
		if c.Compute.TimeoutSeconds <= 0 {
			return errors.Newf("compute.timeout_seconds must be > 0, got %d", c.Compute.TimeoutSeconds)
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.New("metrics.listen_addr cannot be empty when metrics enabled")
	}

	return nil
}
