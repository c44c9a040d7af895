package dispatch

import (
	"context"
	"database/sql"
	"time"

	"github.com/wardenhq/warden/errors"
)

// Store handles persistence of dispatch tasks
type Store struct {
	db *sql.DB
}

// NewStore creates a new dispatch task store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, kind, status, args, result, error, retry_count, run_after, source, created_at, started_at, finished_at`

// CreateTask inserts a new task into the queue
func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO dispatch_tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	args := sql.NullString{String: string(task.Args), Valid: len(task.Args) > 0}
	result := sql.NullString{String: string(task.Result), Valid: len(task.Result) > 0}

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Kind,
		task.Status,
		args,
		result,
		task.Error,
		task.RetryCount,
		task.RunAfter,
		task.Source,
		task.CreatedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create dispatch task")
		err = errors.WithDetailf(err, "Task ID: %s", task.ID)
		err = errors.WithDetailf(err, "Kind: %s", task.Kind)
		return err
	}

	return nil
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM dispatch_tasks WHERE id = ?`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("dispatch task not found: %s", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get dispatch task")
	}

	return task, nil
}

// UpdateTask updates an existing task
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	query := `
		UPDATE dispatch_tasks
		SET status = ?,
		    args = ?,
		    result = ?,
		    error = ?,
		    retry_count = ?,
		    run_after = ?,
		    started_at = ?,
		    finished_at = ?
		WHERE id = ?
	`

	args := sql.NullString{String: string(task.Args), Valid: len(task.Args) > 0}
	result := sql.NullString{String: string(task.Result), Valid: len(task.Result) > 0}

	_, err := s.db.ExecContext(ctx, query,
		task.Status,
		args,
		result,
		task.Error,
		task.RetryCount,
		task.RunAfter,
		task.StartedAt,
		task.FinishedAt,
		task.ID,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to update dispatch task")
		err = errors.WithDetailf(err, "Task ID: %s", task.ID)
		err = errors.WithDetailf(err, "Kind: %s", task.Kind)
		return err
	}

	return nil
}

// NextRunnable returns the oldest queued task whose run_after has passed,
// or nil when the queue is empty.
func (s *Store) NextRunnable(ctx context.Context) (*Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM dispatch_tasks
		WHERE status = 'queued'
		  AND (run_after IS NULL OR run_after <= ?)
		ORDER BY created_at ASC
		LIMIT 1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, time.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No runnable tasks - not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next runnable task")
	}

	return task, nil
}

// ClaimTask atomically transitions a queued task to running. It returns false
// when the task is no longer queued, meaning another worker claimed it first.
func (s *Store) ClaimTask(ctx context.Context, task *Task) (bool, error) {
	now := time.Now()
	query := `UPDATE dispatch_tasks
		SET status = ?, started_at = ?
		WHERE id = ? AND status = 'queued'`

	res, err := s.db.ExecContext(ctx, query, TaskStatusRunning, now, task.ID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim task %s", task.ID)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "failed to read claim result for task %s", task.ID)
	}
	if rows == 0 {
		return false, nil
	}

	task.Status = TaskStatusRunning
	task.StartedAt = &now
	return true, nil
}

// ListByStatus returns tasks with the given status, newest first
func (s *Store) ListByStatus(ctx context.Context, status TaskStatus, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM dispatch_tasks
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dispatch tasks")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan dispatch task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating dispatch tasks")
	}

	return tasks, nil
}

// CountByStatus returns task counts grouped by status
func (s *Store) CountByStatus(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatch_tasks GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count dispatch tasks")
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan task count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating task counts")
	}

	return counts, nil
}

// FindActiveByKindAndSource finds a queued or running task for the given kind
// and source. Returns nil if none - used by the scheduler to avoid stacking
// duplicate periodic work.
func (s *Store) FindActiveByKindAndSource(ctx context.Context, kind, source string) (*Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM dispatch_tasks
		WHERE kind = ?
		  AND source = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, kind, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active task found - this is not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active task by kind and source")
	}

	return task, nil
}

// ListOrphaned returns tasks stuck in running state, oldest first.
// Used on worker pool start to recover from ungraceful shutdowns.
func (s *Store) ListOrphaned(ctx context.Context, limit int) ([]*Task, error) {
	return s.listByStatusAsc(ctx, TaskStatusRunning, limit)
}

func (s *Store) listByStatusAsc(ctx context.Context, status TaskStatus, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM dispatch_tasks
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list dispatch tasks")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan dispatch task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating dispatch tasks")
	}

	return tasks, nil
}

// DeleteOlderThan removes terminal tasks finished before now-olderThan.
// Queue hygiene; returns the number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM dispatch_tasks
		WHERE status IN ('succeeded', 'failed')
		  AND finished_at < ?
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune dispatch tasks")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*Task, error) {
	var task Task
	var args, result sql.NullString
	var runAfter, startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.Status,
		&args,
		&result,
		&task.Error,
		&task.RetryCount,
		&runAfter,
		&task.Source,
		&task.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if args.Valid {
		task.Args = []byte(args.String)
	}
	if result.Valid {
		task.Result = []byte(result.String)
	}
	if runAfter.Valid {
		t := runAfter.Time
		task.RunAfter = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		task.FinishedAt = &t
	}

	return &task, nil
}
