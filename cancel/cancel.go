// Package cancel coordinates execution cancellation: precondition checks,
// best-effort teardown of runtime resources and remote compute tasks, and
// the unconditional CANCELLED status transition.
package cancel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/compute"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/execution"
	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/metrics"
	"github.com/wardenhq/warden/runtime"
)

// DefaultStopTimeout bounds the runtime stop round-trip
const DefaultStopTimeout = 30 * time.Second

// Principal identifies who is asking for the cancellation. Authentication
// happens in the calling layer; this is trusted input.
type Principal struct {
	UserID string
	Admin  bool
}

// Details records what the best-effort teardown actually accomplished
type Details struct {
	ExecutionID            string   `json:"execution_id"`
	PreviousStatus         string   `json:"previous_status"`
	DockerServiceStopped   bool     `json:"docker_service_stopped"`
	DockerContainerStopped bool     `json:"docker_container_stopped"`
	RemoteTasksCancelled   []string `json:"remote_tasks_cancelled"`
	Errors                 []string `json:"errors"`
}

// Outcome is the result of a cancellation
type Outcome struct {
	Execution *execution.Execution `json:"execution"`
	Details   Details              `json:"details"`
}

// Coordinator runs cancellations
type Coordinator struct {
	store       *execution.Store
	lifecycle   *execution.Lifecycle
	logStore    *execution.LogStore
	dispatcher  *dispatch.Dispatcher
	canceller   compute.Canceller
	stopTimeout time.Duration
	logger      *zap.SugaredLogger
}

// NewCoordinator creates a cancellation coordinator
func NewCoordinator(store *execution.Store, lifecycle *execution.Lifecycle, logStore *execution.LogStore, dispatcher *dispatch.Dispatcher, canceller compute.Canceller, stopTimeout time.Duration, log *zap.SugaredLogger) *Coordinator {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Coordinator{
		store:       store,
		lifecycle:   lifecycle,
		logStore:    logStore,
		dispatcher:  dispatcher,
		canceller:   canceller,
		stopTimeout: stopTimeout,
		logger:      log.Named("cancel"),
	}
}

// Cancel cancels an execution on behalf of the principal.
//
// Preconditions raise taxonomy errors (NotFound, Forbidden, Conflict).
// Past them, teardown is best effort: runtime and compute failures are
// collected into Details.Errors, and the CANCELLED transition happens
// unconditionally. Only a failure of that final transition propagates.
func (c *Coordinator) Cancel(ctx context.Context, executionID string, principal Principal) (*Outcome, error) {
	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if principal.UserID != exec.UserID && !principal.Admin {
		return nil, execution.Forbiddenf("user %s may not cancel execution %s", principal.UserID, executionID)
	}

	if exec.Status.Terminal() {
		return nil, execution.Conflictf("execution %s is already %s", executionID, exec.Status)
	}

	details := Details{
		ExecutionID:          executionID,
		PreviousStatus:       string(exec.Status),
		RemoteTasksCancelled: []string{},
		Errors:               []string{},
	}

	c.stopRuntime(ctx, executionID, &details)
	totalTokens := c.cancelRemoteTasks(ctx, executionID, &details)

	// The one mutation that must happen no matter what went wrong above
	if err := c.lifecycle.ApplyStatus(ctx, exec, execution.StatusCancelled, nil); err != nil {
		return nil, errors.Wrapf(err, "failed to mark execution %s cancelled", executionID)
	}

	// Always written, "0/0" included, so the audit trail records that the
	// token scan ran
	line := fmt.Sprintf("%d/%d remote tasks cancelled", len(details.RemoteTasksCancelled), totalTokens)
	if err := c.lifecycle.AppendLog(ctx, executionID, line, execution.LogLevelInfo); err != nil {
		c.logger.Warnw("Failed to append remote-task audit line",
			logger.FieldExecutionID, executionID, "error", err)
	}

	line = fmt.Sprintf("Execution cancelled by user %s (was %s, service stopped: %t, container stopped: %t)",
		principal.UserID, details.PreviousStatus, details.DockerServiceStopped, details.DockerContainerStopped)
	if err := c.lifecycle.AppendLog(ctx, executionID, line, execution.LogLevelInfo); err != nil {
		c.logger.Warnw("Failed to append cancellation audit line",
			logger.FieldExecutionID, executionID, "error", err)
	}

	outcome := "clean"
	if len(details.Errors) > 0 {
		outcome = "partial"
	}
	metrics.Cancellations.WithLabelValues(outcome).Inc()

	c.logger.Infow("Execution cancelled",
		logger.FieldExecutionID, executionID,
		logger.FieldUserID, principal.UserID,
		"previous_status", details.PreviousStatus,
		"service_stopped", details.DockerServiceStopped,
		"container_stopped", details.DockerContainerStopped,
		"remote_cancelled", len(details.RemoteTasksCancelled),
		"errors", len(details.Errors))

	return &Outcome{Execution: exec, Details: details}, nil
}

// stopRuntime runs the runtime teardown through the dispatch queue and waits
// for the result, bounded by the stop timeout
func (c *Coordinator) stopRuntime(ctx context.Context, executionID string, details *Details) {
	args, err := json.Marshal(runtime.StopArgs{ExecutionID: executionID})
	if err != nil {
		details.Errors = append(details.Errors, errors.Wrap(err, "marshal stop args").Error())
		return
	}

	handle, err := c.dispatcher.Submit(ctx, dispatch.KindRuntimeStop, args, "cancel")
	if err != nil {
		details.Errors = append(details.Errors, errors.Wrap(err, "submit runtime stop").Error())
		return
	}

	task, err := handle.Wait(ctx, c.stopTimeout)
	if err != nil {
		details.Errors = append(details.Errors, errors.Wrap(err, "runtime stop").Error())
		return
	}
	if task.Status != dispatch.TaskStatusSucceeded {
		details.Errors = append(details.Errors, fmt.Sprintf("runtime stop %s: %s", task.Status, task.Error))
		return
	}

	var result runtime.StopResult
	if err := json.Unmarshal(task.Result, &result); err != nil {
		details.Errors = append(details.Errors, errors.Wrap(err, "decode stop result").Error())
		return
	}

	details.DockerServiceStopped = result.ServiceStopped
	details.DockerContainerStopped = result.ContainerStopped
	details.Errors = append(details.Errors, result.Errors...)
}

// cancelRemoteTasks scans the execution log for compute task tokens and asks
// the backend to cancel each one. Returns the number of tokens found.
func (c *Coordinator) cancelRemoteTasks(ctx context.Context, executionID string, details *Details) int {
	entries, err := c.logStore.ListForExecution(ctx, executionID)
	if err != nil {
		details.Errors = append(details.Errors, errors.Wrap(err, "list execution logs").Error())
		return 0
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Text)
	}

	tokens := compute.ScanTokens(lines)
	for _, token := range tokens {
		if err := c.canceller.CancelTask(ctx, token); err != nil {
			details.Errors = append(details.Errors, errors.Wrapf(err, "cancel compute task %s", token).Error())
			continue
		}
		details.RemoteTasksCancelled = append(details.RemoteTasksCancelled, token)
	}

	return len(tokens)
}
