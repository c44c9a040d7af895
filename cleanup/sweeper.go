// Package cleanup reclaims executions and runtime resources left behind by
// crashes, abandonment, and ordinary completion. Three independent sweeps
// run as dispatch tasks on their own intervals.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/execution"
	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/metrics"
	"github.com/wardenhq/warden/runtime"
)

// Sweep names used in results, metrics, and logs
const (
	SweepStale    = "stale"
	SweepFinished = "finished"
	SweepFailed   = "failed"
)

// Config holds the retention windows for the three sweeps
type Config struct {
	StaleAfter     time.Duration // Force-fail executions started before now-this
	FinishedWithin time.Duration // Reclaim FINISHED resources ended within this
	FailedAfter    time.Duration // Reclaim FAILED resources ended before now-this
	BatchLimit     int           // Max executions per sweep
}

// DefaultConfig returns the standard retention windows
func DefaultConfig() Config {
	return Config{
		StaleAfter:     72 * time.Hour,
		FinishedWithin: 24 * time.Hour,
		FailedAfter:    14 * 24 * time.Hour,
		BatchLimit:     100,
	}
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Sweep            string    `json:"sweep"`
	Reclaimed        int       `json:"reclaimed"`         // Executions force-failed (stale sweep only)
	ResourcesRemoved int       `json:"resources_removed"` // Executions with at least one resource removed
	Cutoff           time.Time `json:"cutoff"`
}

// Sweeper runs the reclamation sweeps
type Sweeper struct {
	store     *execution.Store
	lifecycle *execution.Lifecycle
	client    runtime.Client
	config    Config
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewSweeper creates a sweeper
func NewSweeper(store *execution.Store, lifecycle *execution.Lifecycle, client runtime.Client, cfg Config, log *zap.SugaredLogger) *Sweeper {
	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.FinishedWithin <= 0 {
		cfg.FinishedWithin = def.FinishedWithin
	}
	if cfg.FailedAfter <= 0 {
		cfg.FailedAfter = def.FailedAfter
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	return &Sweeper{
		store:     store,
		lifecycle: lifecycle,
		client:    client,
		config:    cfg,
		logger:    log.Named("cleanup"),
		now:       time.Now,
	}
}

// SweepStale force-fails executions that started before the stale cutoff and
// never reached FINISHED or FAILED, then tears down their runtime resources.
// CANCELLED is included: a cancellation that never got its teardown is still
// holding resources.
func (s *Sweeper) SweepStale(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)
	result := SweepResult{Sweep: SweepStale, Cutoff: cutoff}

	execs, err := s.store.ListExecutions(ctx, execution.Filter{
		Statuses: []execution.Status{
			execution.StatusPending,
			execution.StatusReady,
			execution.StatusRunning,
			execution.StatusCancelled,
		},
		StartedBefore: &cutoff,
		Limit:         s.config.BatchLimit,
	})
	if err != nil {
		return result, errors.Wrap(err, "failed to query stale executions")
	}

	for _, exec := range execs {
		age := s.now().Sub(exec.StartDate).Round(time.Hour)
		// Propagate so the queue records a failed pass and retries,
		// instead of reporting a sweep that silently skipped executions
		if err := s.lifecycle.ApplyStatus(ctx, exec, execution.StatusFailed, nil); err != nil {
			return result, errors.Wrapf(err, "failed to force-fail stale execution %s", exec.ID)
		}
		result.Reclaimed++

		line := fmt.Sprintf("Execution failed by stale cleanup after %s without completion", age)
		if err := s.lifecycle.AppendLog(ctx, exec.ID, line, execution.LogLevelWarning); err != nil {
			s.logger.Warnw("Failed to append cleanup log line",
				logger.FieldExecutionID, exec.ID, "error", err)
		}

		if s.removeResources(ctx, exec.ID) {
			result.ResourcesRemoved++
		}
	}

	s.finishSweep(result)
	return result, nil
}

// SweepFinished removes leftover runtime resources of executions that
// finished within the recent window. Status is untouched.
func (s *Sweeper) SweepFinished(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.config.FinishedWithin)
	result := SweepResult{Sweep: SweepFinished, Cutoff: cutoff}

	execs, err := s.store.ListExecutions(ctx, execution.Filter{
		Statuses:   []execution.Status{execution.StatusFinished},
		EndedSince: &cutoff,
		Limit:      s.config.BatchLimit,
	})
	if err != nil {
		return result, errors.Wrap(err, "failed to query finished executions")
	}

	for _, exec := range execs {
		if s.removeResources(ctx, exec.ID) {
			result.ResourcesRemoved++
		}
	}

	s.finishSweep(result)
	return result, nil
}

// SweepFailed removes runtime resources of executions that failed long
// enough ago. The window is generous so failed resources stay inspectable.
func (s *Sweeper) SweepFailed(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.config.FailedAfter)
	result := SweepResult{Sweep: SweepFailed, Cutoff: cutoff}

	execs, err := s.store.ListExecutions(ctx, execution.Filter{
		Statuses:    []execution.Status{execution.StatusFailed},
		EndedBefore: &cutoff,
		Limit:       s.config.BatchLimit,
	})
	if err != nil {
		return result, errors.Wrap(err, "failed to query failed executions")
	}

	for _, exec := range execs {
		if s.removeResources(ctx, exec.ID) {
			result.ResourcesRemoved++
		}
	}

	s.finishSweep(result)
	return result, nil
}

// removeResources tears down the service and container for an execution.
// NotFound counts as already-gone. Returns true if at least one resource was
// actually removed; errors are logged and never abort the sweep.
func (s *Sweeper) removeResources(ctx context.Context, executionID string) bool {
	name := runtime.ResourceName(executionID)
	removed := false

	services, err := s.client.ListServices(ctx, name)
	if err != nil {
		s.logger.Warnw("Failed to list services for cleanup",
			logger.FieldExecutionID, executionID, "error", err)
	}
	for _, svc := range services {
		if err := s.client.RemoveService(ctx, svc.ID); err != nil {
			if !errors.IsNotFoundError(err) {
				s.logger.Warnw("Failed to remove service during cleanup",
					logger.FieldExecutionID, executionID,
					"service_id", svc.ID, "error", err)
			}
			continue
		}
		removed = true
	}

	containers, err := s.client.ListContainers(ctx, name)
	if err != nil {
		s.logger.Warnw("Failed to list containers for cleanup",
			logger.FieldExecutionID, executionID, "error", err)
	}
	for _, ctr := range containers {
		if err := s.client.StopContainer(ctx, ctr.ID); err != nil && !errors.IsNotFoundError(err) {
			s.logger.Debugw("Container already stopped or stop failed",
				logger.FieldExecutionID, executionID,
				"container_id", ctr.ID, "error", err)
		}
		if err := s.client.RemoveContainer(ctx, ctr.ID); err != nil {
			if !errors.IsNotFoundError(err) {
				s.logger.Warnw("Failed to remove container during cleanup",
					logger.FieldExecutionID, executionID,
					"container_id", ctr.ID, "error", err)
			}
			continue
		}
		removed = true
	}

	return removed
}

func (s *Sweeper) finishSweep(result SweepResult) {
	metrics.CleanupReclaimed.WithLabelValues(result.Sweep).Add(float64(result.Reclaimed))
	metrics.CleanupResourcesRemoved.WithLabelValues(result.Sweep).Add(float64(result.ResourcesRemoved))

	if result.Reclaimed > 0 || result.ResourcesRemoved > 0 {
		s.logger.Infow("Cleanup sweep complete",
			"sweep", result.Sweep,
			"reclaimed", result.Reclaimed,
			"resources_removed", result.ResourcesRemoved,
			"cutoff", result.Cutoff)
	} else {
		s.logger.Debugw("Cleanup sweep found nothing to reclaim", "sweep", result.Sweep)
	}
}
