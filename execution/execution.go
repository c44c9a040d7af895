// Package execution owns the execution entity, its persisted stores, and the
// apply-status state machine that is the only write path for status changes.
package execution

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of an execution
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusFinished  Status = "FINISHED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final. Automated writers never
// move an execution out of a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusReady, StatusRunning,
		StatusFinished, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the non-terminal statuses.
var ActiveStatuses = []Status{StatusPending, StatusReady, StatusRunning}

// Execution represents one run of a user-submitted script.
// It is backed 1:1 by a runtime service/container named execution-<id>.
type Execution struct {
	ID        string          `json:"id"`
	ScriptID  string          `json:"script_id"`
	UserID    string          `json:"user_id"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"` // 0..100
	Params    json.RawMessage `json:"params,omitempty"`
	Results   json.RawMessage `json:"results,omitempty"`
	StartDate time.Time       `json:"start_date"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
}

// New creates a PENDING execution for the given script and owner.
func New(scriptID, userID string, params json.RawMessage) *Execution {
	return &Execution{
		ID:        uuid.NewString(),
		ScriptID:  scriptID,
		UserID:    userID,
		Status:    StatusPending,
		Progress:  0,
		Params:    params,
		StartDate: time.Now(),
	}
}

// LogEntry is a single append-only audit line for an execution
type LogEntry struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Text        string    `json:"text"`
	Level       string    `json:"level"`
	Timestamp   time.Time `json:"timestamp"`
}

// Log levels for execution audit lines
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// StatusCounts holds aggregate execution counts per status at a point in time
type StatusCounts struct {
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Finished  int `json:"finished"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Total returns the sum of all counts
func (c StatusCounts) Total() int {
	return c.Pending + c.Ready + c.Running + c.Finished + c.Failed + c.Cancelled
}

// StatusLog is an immutable snapshot written once per status transition,
// consumed by external dashboards. Never updated or deleted.
type StatusLog struct {
	ID          int64        `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Counts      StatusCounts `json:"counts"`
	StatusFrom  Status       `json:"status_from"`
	StatusTo    Status       `json:"status_to"`
	ExecutionID string       `json:"execution_id"`
}
