package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/metrics"
)

// Lifecycle is the apply-status state machine: the only write path for
// execution status changes. Every transition persists the row and records
// one StatusLog snapshot in the same logical operation.
//
// Errors here propagate to the caller unchanged; a failed state mutation
// signals registry corruption and must never be silently swallowed.
type Lifecycle struct {
	store     *Store
	logStore  *LogStore
	statusLog *StatusLogStore
	logger    *zap.SugaredLogger

	// now is injectable for deterministic tests
	now func() time.Time
}

// NewLifecycle creates the state machine over the given stores
func NewLifecycle(store *Store, logStore *LogStore, statusLog *StatusLogStore, log *zap.SugaredLogger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		logStore:  logStore,
		statusLog: statusLog,
		logger:    log,
		now:       time.Now,
	}
}

// ApplyStatus transitions exec to newStatus and persists the result.
//
// For terminal statuses: end_date is set to now if unset (an already-set
// end_date is preserved), and progress becomes 100 unless explicitProgress
// is supplied, in which case that exact value is kept.
//
// Exactly one StatusLog row is written per call, with counts taken after
// the mutation commits.
func (l *Lifecycle) ApplyStatus(ctx context.Context, exec *Execution, newStatus Status, explicitProgress *int) error {
	if !IsValidStatus(string(newStatus)) {
		return errors.Newf("invalid status %q for execution %s", newStatus, exec.ID)
	}

	from := exec.Status
	exec.Status = newStatus

	if newStatus.Terminal() {
		if exec.EndDate == nil {
			now := l.now()
			exec.EndDate = &now
		}
		if explicitProgress != nil {
			exec.Progress = *explicitProgress
		} else {
			exec.Progress = 100
		}
	}

	if err := l.store.UpdateExecution(ctx, exec); err != nil {
		return errors.Wrapf(err, "failed to apply status %s to execution %s", newStatus, exec.ID)
	}

	// Aggregate counts are queried after the mutation commits so the
	// snapshot reflects the post-transition registry.
	counts, err := l.store.CountByStatus(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to count executions after transition of %s", exec.ID)
	}

	if err := l.statusLog.Record(ctx, counts, from, newStatus, exec.ID); err != nil {
		return errors.Wrapf(err, "failed to log transition %s -> %s for execution %s", from, newStatus, exec.ID)
	}

	metrics.StatusTransitions.WithLabelValues(string(from), string(newStatus)).Inc()

	l.logger.Infow("Execution status applied",
		logger.FieldExecutionID, exec.ID,
		logger.FieldStatusFrom, string(from),
		logger.FieldStatusTo, string(newStatus),
		logger.FieldProgress, exec.Progress,
	)

	return nil
}

// AppendLog writes one audit line for an execution. Kept on the lifecycle so
// components that already hold it don't need a second store handle.
func (l *Lifecycle) AppendLog(ctx context.Context, executionID, text, level string) error {
	return l.logStore.Append(ctx, executionID, text, level)
}
