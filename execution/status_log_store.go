package execution

import (
	"context"
	"database/sql"
	"time"

	"github.com/wardenhq/warden/errors"
)

// StatusLogStore persists immutable status transition snapshots
type StatusLogStore struct {
	db *sql.DB
}

// NewStatusLogStore creates a new status log store
func NewStatusLogStore(db *sql.DB) *StatusLogStore {
	return &StatusLogStore{db: db}
}

const statusLogColumns = `id, timestamp, pending, ready, running, finished, failed, cancelled, status_from, status_to, execution_id`

// Record writes one transition snapshot. Rows are never updated or deleted,
// and repeated calls are never deduplicated: one row per transition.
func (s *StatusLogStore) Record(ctx context.Context, counts StatusCounts, from, to Status, executionID string) error {
	query := `
		INSERT INTO status_logs (
			timestamp, pending, ready, running, finished, failed, cancelled,
			status_from, status_to, execution_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		time.Now(),
		counts.Pending,
		counts.Ready,
		counts.Running,
		counts.Finished,
		counts.Failed,
		counts.Cancelled,
		from,
		to,
		executionID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record status transition %s -> %s for execution %s", from, to, executionID)
	}

	return nil
}

// ListForExecution returns all transition snapshots for an execution in order
func (s *StatusLogStore) ListForExecution(ctx context.Context, executionID string) ([]*StatusLog, error) {
	query := `SELECT ` + statusLogColumns + ` FROM status_logs WHERE execution_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query status logs for execution %s", executionID)
	}
	defer rows.Close()

	return scanStatusLogs(rows)
}

// Latest returns the n most recent transition snapshots, newest first
func (s *StatusLogStore) Latest(ctx context.Context, n int) ([]*StatusLog, error) {
	query := `SELECT ` + statusLogColumns + ` FROM status_logs ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest status logs")
	}
	defer rows.Close()

	return scanStatusLogs(rows)
}

func scanStatusLogs(rows *sql.Rows) ([]*StatusLog, error) {
	var logs []*StatusLog
	for rows.Next() {
		var sl StatusLog
		err := rows.Scan(
			&sl.ID,
			&sl.Timestamp,
			&sl.Counts.Pending,
			&sl.Counts.Ready,
			&sl.Counts.Running,
			&sl.Counts.Finished,
			&sl.Counts.Failed,
			&sl.Counts.Cancelled,
			&sl.StatusFrom,
			&sl.StatusTo,
			&sl.ExecutionID,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan status log")
		}
		logs = append(logs, &sl)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating status logs")
	}

	return logs, nil
}
