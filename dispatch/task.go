// Package dispatch provides warden's persisted task queue: monitor passes,
// cleanup sweeps, and runtime stop requests are each independent queued units
// of work with explicit results, bounded retry, and backoff.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a dispatch task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the task has finished either way
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Well-known task kinds
const (
	KindMonitorPass     = "monitor.pass"
	KindCleanupStale    = "cleanup.stale"
	KindCleanupFinished = "cleanup.finished"
	KindCleanupFailed   = "cleanup.failed"
	KindRuntimeStop     = "runtime.stop"
	KindQueuePrune      = "dispatch.prune"
)

// Task is one queued unit of work
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"` // routes to the registered handler
	Status     TaskStatus      `json:"status"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retry_count,omitempty"`
	RunAfter   *time.Time      `json:"run_after,omitempty"` // not runnable before this
	Source     string          `json:"source"`              // for deduplication and logging
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewTask creates a queued task for the given kind
func NewTask(kind string, args json.RawMessage, source string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    TaskStatusQueued,
		Args:      args,
		Source:    source,
		CreatedAt: time.Now(),
	}
}

// Start marks the task as running
func (t *Task) Start() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

// Succeed marks the task as succeeded with its result payload
func (t *Task) Succeed(result json.RawMessage) {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.Result = result
	t.FinishedAt = &now
}

// Fail marks the task as failed with an error message
func (t *Task) Fail(err error) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.Error = err.Error()
	t.FinishedAt = &now
}

// Requeue resets the task for a retry after the given backoff
func (t *Task) Requeue(backoff time.Duration) {
	runAfter := time.Now().Add(backoff)
	t.Status = TaskStatusQueued
	t.RetryCount++
	t.RunAfter = &runAfter
	t.StartedAt = nil
}
