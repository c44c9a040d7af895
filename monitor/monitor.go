// Package monitor watches recent executions against the container runtime
// and fails the ones whose services have died, vanished, or entered restart
// loops.
package monitor

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

// Failure reasons recorded on executions marked FAILED by a pass
const (
	ReasonNoService    = "no_service"
	ReasonNoActive     = "no_active"
	ReasonRestartLoop  = "restart_loop"
	ReasonFailingTasks = "failing_tasks"
)

// windowStatuses is what a pass scans: non-terminal executions plus FAILED.
// FAILED is deliberately re-scanned so auto-restarted services caught in a
// crash loop keep getting detected.
var windowStatuses = []execution.Status{
	execution.StatusPending,
	execution.StatusReady,
	execution.StatusRunning,
	execution.StatusFailed,
}

// PassResult summarizes one monitor pass
type PassResult struct {
	Scanned      int  `json:"scanned"`
	MarkedFailed int  `json:"marked_failed"`
	Skipped      int  `json:"skipped"`
	Aborted      bool `json:"aborted,omitempty"`
}

// Config bounds what a single pass looks at
type Config struct {
	Window     time.Duration // How far back start_date may be
	BatchLimit int           // Max executions per pass
}

// DefaultConfig returns the standard pass bounds
func DefaultConfig() Config {
	return Config{
		Window:     24 * time.Hour,
		BatchLimit: 50,
	}
}

// Monitor evaluates recent executions against their runtime services
type Monitor struct {
	store     *execution.Store
	lifecycle *execution.Lifecycle
	client    runtime.Client
	config    Config
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// New creates a monitor
func New(store *execution.Store, lifecycle *execution.Lifecycle, client runtime.Client, cfg Config, log *zap.SugaredLogger) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultConfig().BatchLimit
	}
	return &Monitor{
		store:     store,
		lifecycle: lifecycle,
		client:    client,
		config:    cfg,
		logger:    log.Named("monitor"),
		now:       time.Now,
	}
}

// RunPass scans the execution window and fails executions whose runtime
// backing has died. A runtime that is unreachable altogether aborts the pass
// (logged, nil error); state-machine failures are the only errors raised.
func (m *Monitor) RunPass(ctx context.Context) (PassResult, error) {
	var result PassResult

	since := m.now().Add(-m.config.Window)
	execs, err := m.store.ListExecutions(ctx, execution.Filter{
		Statuses:     windowStatuses,
		StartedSince: &since,
		Limit:        m.config.BatchLimit,
	})
	if err != nil {
		return result, errors.Wrap(err, "failed to query monitor window")
	}
	if len(execs) == 0 {
		metrics.MonitorPasses.WithLabelValues("empty").Inc()
		return result, nil
	}

	// One availability probe for the whole pass. An unreachable runtime is
	// an environment problem, not an execution problem: abort instead of
	// failing fifty healthy executions on a daemon restart.
	services, err := m.client.ListServices(ctx, runtime.ServicePrefix)
	if err != nil {
		if errors.Is(err, execution.ErrRuntimeUnavailable) {
			m.logger.Warnw("Container runtime unavailable, aborting monitor pass", "error", err)
			metrics.MonitorPasses.WithLabelValues("aborted").Inc()
			result.Aborted = true
			return result, nil
		}
		return result, errors.Wrap(err, "failed to list runtime services")
	}

	servicesByName := make(map[string]runtime.Service, len(services))
	for _, svc := range services {
		servicesByName[svc.Name] = svc
	}

	for _, exec := range execs {
		outcome, err := m.evaluate(ctx, exec, servicesByName)
		if err != nil {
			return result, err
		}
		switch outcome {
		case verdictFailed:
			result.MarkedFailed++
		case verdictSkipped:
			result.Skipped++
		}
		result.Scanned++
	}

	metrics.MonitorPasses.WithLabelValues("completed").Inc()
	m.logger.Infow("Monitor pass complete",
		"scanned", result.Scanned,
		"marked_failed", result.MarkedFailed,
		"skipped", result.Skipped)

	return result, nil
}

type verdict int

const (
	verdictHealthy verdict = iota
	verdictFailed
	verdictSkipped
)

// evaluate checks one execution's service health and applies a FAILED verdict
// when warranted. Runtime errors for this execution are logged and skipped;
// only ApplyStatus failures propagate.
func (m *Monitor) evaluate(ctx context.Context, exec *execution.Execution, servicesByName map[string]runtime.Service) (verdict, error) {
	svc, found := servicesByName[runtime.ResourceName(exec.ID)]
	if !found {
		return m.markFailed(ctx, exec, nil, ReasonNoService,
			"service vanished without a trace")
	}

	tasks, err := m.client.ServiceTasks(ctx, svc.ID)
	if err != nil {
		m.logger.Warnw("Failed to fetch service tasks, skipping execution",
			logger.FieldExecutionID, exec.ID,
			"service_id", svc.ID,
			"error", err)
		return verdictSkipped, nil
	}

	var active, failed int
	for _, task := range tasks {
		if task.Active() {
			active++
		}
		if task.Failed() {
			failed++
		}
	}

	switch {
	case active == 0 && failed > 0:
		return m.markFailed(ctx, exec, &svc, ReasonNoActive,
			fmt.Sprintf("no active tasks, %d failed", failed))
	case failed >= 2:
		return m.markFailed(ctx, exec, &svc, ReasonRestartLoop,
			fmt.Sprintf("restart loop detected, %d failed tasks", failed))
	case active > 0 && failed > 0:
		return m.markFailed(ctx, exec, &svc, ReasonFailingTasks,
			fmt.Sprintf("%d active but %d failed tasks", active, failed))
	default:
		return verdictHealthy, nil
	}
}

// markFailed re-reads the execution, applies the FAILED status, records the
// reason in the execution log, and best-effort removes the service
func (m *Monitor) markFailed(ctx context.Context, exec *execution.Execution, svc *runtime.Service, reason, detail string) (verdict, error) {
	// Re-read before the verdict: the execution may have finished or been
	// cancelled since the window query
	current, err := m.store.GetExecution(ctx, exec.ID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return verdictSkipped, nil
		}
		return verdictSkipped, errors.Wrapf(err, "failed to re-read execution %s", exec.ID)
	}
	if current.Status.Terminal() && current.Status != execution.StatusFailed {
		m.logger.Debugw("Execution reached terminal status during pass, skipping",
			logger.FieldExecutionID, exec.ID,
			logger.FieldStatus, string(current.Status))
		return verdictSkipped, nil
	}

	// Re-marking an already FAILED execution is deliberate: its restarted
	// service is still looping and its resources still need tearing down
	if err := m.lifecycle.ApplyStatus(ctx, current, execution.StatusFailed, nil); err != nil {
		return verdictFailed, errors.Wrapf(err, "failed to mark execution %s FAILED", exec.ID)
	}

	logLine := fmt.Sprintf("Health monitor marked execution failed (%s): %s", reason, detail)
	if err := m.lifecycle.AppendLog(ctx, exec.ID, logLine, execution.LogLevelError); err != nil {
		m.logger.Warnw("Failed to append monitor log line",
			logger.FieldExecutionID, exec.ID, "error", err)
	}

	if svc != nil {
		if err := m.client.RemoveService(ctx, svc.ID); err != nil && !errors.IsNotFoundError(err) {
			m.logger.Warnw("Failed to remove service for failed execution",
				logger.FieldExecutionID, exec.ID,
				"service_id", svc.ID,
				"error", err)
		}
	}

	metrics.MonitorMarkedFailed.WithLabelValues(reason).Inc()
	m.logger.Warnw("Execution marked failed by health monitor",
		logger.FieldExecutionID, exec.ID,
		"reason", reason,
		"detail", detail)

	return verdictFailed, nil
}
