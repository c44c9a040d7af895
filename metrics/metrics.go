// Package metrics exposes prometheus collectors for the execution lifecycle core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StatusTransitions counts apply-status transitions by from/to status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "status_transitions_total",
		Help:      "Execution status transitions recorded by the state machine",
	}, []string{"from", "to"})

	// MonitorPasses counts health monitor passes by outcome (ok, aborted, error).
	MonitorPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "monitor_passes_total",
		Help:      "Health monitor reconciliation passes",
	}, []string{"outcome"})

	// MonitorMarkedFailed counts executions the monitor marked FAILED by reason.
	MonitorMarkedFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "monitor_marked_failed_total",
		Help:      "Executions marked FAILED by the health monitor",
	}, []string{"reason"})

	// CleanupReclaimed counts executions force-failed by cleanup sweeps.
	CleanupReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "cleanup_reclaimed_total",
		Help:      "Executions reclaimed by cleanup sweeps",
	}, []string{"sweep"})

	// CleanupResourcesRemoved counts runtime resources removed by cleanup sweeps.
	CleanupResourcesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "cleanup_resources_removed_total",
		Help:      "Runtime services/containers removed by cleanup sweeps",
	}, []string{"sweep"})

	// Cancellations counts cancellation coordinator invocations by outcome
	// (clean, partial; preconditions that reject the request are not counted).
	Cancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "cancellations_total",
		Help:      "Execution cancellations finalized by the coordinator",
	}, []string{"outcome"})

	// DispatchTasks counts dispatch task completions by kind and final status.
	DispatchTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "dispatch_tasks_total",
		Help:      "Dispatch tasks processed by the worker pool",
	}, []string{"kind", "status"})

	// DispatchTaskDuration observes task execution time by kind.
	DispatchTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "warden",
		Name:      "dispatch_task_duration_seconds",
		Help:      "Dispatch task execution duration",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms .. ~2.7m
	}, []string{"kind"})
)

// Handler returns the HTTP handler serving the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
