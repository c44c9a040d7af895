package execution

import (
	"context"
	"database/sql"
	"time"

	"github.com/wardenhq/warden/errors"
)

// LogStore handles persistence of append-only execution audit lines
type LogStore struct {
	db *sql.DB
}

// NewLogStore creates a new execution log store
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Append writes one audit line for an execution with the current timestamp
func (s *LogStore) Append(ctx context.Context, executionID, text, level string) error {
	query := `
		INSERT INTO execution_logs (execution_id, text, level, timestamp)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, executionID, text, level, time.Now()); err != nil {
		return errors.Wrapf(err, "failed to append log for execution %s", executionID)
	}

	return nil
}

// ListForExecution returns all log entries for an execution in insertion order
func (s *LogStore) ListForExecution(ctx context.Context, executionID string) ([]*LogEntry, error) {
	query := `
		SELECT id, execution_id, text, level, timestamp
		FROM execution_logs
		WHERE execution_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query logs for execution %s", executionID)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(&entry.ID, &entry.ExecutionID, &entry.Text, &entry.Level, &entry.Timestamp); err != nil {
			return nil, errors.Wrapf(err, "failed to scan log row for execution %s", executionID)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating logs for execution %s", executionID)
	}

	return entries, nil
}
