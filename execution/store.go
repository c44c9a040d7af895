package execution

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/wardenhq/warden/errors"
)

// Store handles persistence of executions
type Store struct {
	db *sql.DB
}

// NewStore creates a new execution store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const executionColumns = `id, script_id, user_id, status, progress, params, results, start_date, end_date`

// CreateExecution inserts a new execution into the database
func (s *Store) CreateExecution(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	params := sql.NullString{String: string(exec.Params), Valid: len(exec.Params) > 0}
	results := sql.NullString{String: string(exec.Results), Valid: len(exec.Results) > 0}

	_, err := s.db.ExecContext(ctx, query,
		exec.ID,
		exec.ScriptID,
		exec.UserID,
		exec.Status,
		exec.Progress,
		params,
		results,
		exec.StartDate,
		exec.EndDate,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	return nil
}

// GetExecution retrieves an execution by ID
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = ?`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}

	return exec, nil
}

// UpdateExecution updates an existing execution row in full
func (s *Store) UpdateExecution(ctx context.Context, exec *Execution) error {
	query := `
		UPDATE executions
		SET script_id = ?,
		    user_id = ?,
		    status = ?,
		    progress = ?,
		    params = ?,
		    results = ?,
		    start_date = ?,
		    end_date = ?
		WHERE id = ?
	`

	params := sql.NullString{String: string(exec.Params), Valid: len(exec.Params) > 0}
	results := sql.NullString{String: string(exec.Results), Valid: len(exec.Results) > 0}

	res, err := s.db.ExecContext(ctx, query,
		exec.ScriptID,
		exec.UserID,
		exec.Status,
		exec.Progress,
		params,
		results,
		exec.StartDate,
		exec.EndDate,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return NotFoundf("execution not found: %s", exec.ID)
	}

	return nil
}

// UpdateProgressResults updates only progress and results.
// Deliberately touches neither status nor end_date and writes no audit rows;
// this is the path for runtime progress callbacks on live executions.
func (s *Store) UpdateProgressResults(ctx context.Context, id string, progress int, results []byte) error {
	query := `UPDATE executions SET progress = ?, results = ? WHERE id = ?`

	resultsVal := sql.NullString{String: string(results), Valid: len(results) > 0}

	res, err := s.db.ExecContext(ctx, query, progress, resultsVal, id)
	if err != nil {
		return errors.Wrap(err, "failed to update execution progress")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return NotFoundf("execution not found: %s", id)
	}

	return nil
}

// Filter narrows ListExecutions results. Zero values mean "no constraint".
type Filter struct {
	Statuses      []Status
	UserID        string
	StartedSince  *time.Time // start_date >= this
	StartedBefore *time.Time // start_date < this
	EndedSince    *time.Time // end_date >= this
	EndedBefore   *time.Time // end_date < this
	Limit         int
}

// ListExecutions returns executions matching the filter,
// ordered by start_date descending (most recent first).
func (s *Store) ListExecutions(ctx context.Context, f Filter) ([]*Execution, error) {
	var conds []string
	var args []interface{}

	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.StartedSince != nil {
		conds = append(conds, "start_date >= ?")
		args = append(args, *f.StartedSince)
	}
	if f.StartedBefore != nil {
		conds = append(conds, "start_date < ?")
		args = append(args, *f.StartedBefore)
	}
	if f.EndedSince != nil {
		conds = append(conds, "end_date >= ?")
		args = append(args, *f.EndedSince)
	}
	if f.EndedBefore != nil {
		conds = append(conds, "end_date < ?")
		args = append(args, *f.EndedBefore)
	}

	query := `SELECT ` + executionColumns + ` FROM executions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}

	return execs, nil
}

// CountByStatus returns aggregate execution counts grouped by status
func (s *Store) CountByStatus(ctx context.Context) (StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM executions GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return StatusCounts{}, errors.Wrap(err, "failed to count executions by status")
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, errors.Wrap(err, "failed to scan status count")
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusReady:
			counts.Ready = n
		case StatusRunning:
			counts.Running = n
		case StatusFinished:
			counts.Finished = n
		case StatusFailed:
			counts.Failed = n
		case StatusCancelled:
			counts.Cancelled = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, errors.Wrap(err, "error iterating status counts")
	}

	return counts, nil
}

// DeleteExecution removes an execution row. Retention tooling only; the
// lifecycle core itself never deletes executions.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete execution")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return NotFoundf("execution not found: %s", id)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanExecution
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*Execution, error) {
	var exec Execution
	var params, results sql.NullString
	var endDate sql.NullTime

	err := row.Scan(
		&exec.ID,
		&exec.ScriptID,
		&exec.UserID,
		&exec.Status,
		&exec.Progress,
		&params,
		&results,
		&exec.StartDate,
		&endDate,
	)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		exec.Params = []byte(params.String)
	}
	if results.Valid {
		exec.Results = []byte(results.String)
	}
	if endDate.Valid {
		t := endDate.Time
		exec.EndDate = &t
	}

	return &exec, nil
}
