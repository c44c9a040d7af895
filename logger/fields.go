package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across warden.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldExecutionID = "execution_id"
	FieldTaskID      = "task_id"
	FieldScriptID    = "script_id"
	FieldUserID      = "user_id"

	// Components
	FieldComponent = "component"
	FieldHandler   = "handler"
	FieldService   = "service"
	FieldContainer = "container"

	// Operations
	FieldOperation = "operation"
	FieldKind      = "kind"
	FieldSweep     = "sweep"
	FieldReason    = "reason"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"
	FieldCutoff     = "cutoff"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount     = "count"
	FieldScanned   = "scanned"
	FieldReclaimed = "reclaimed"
	FieldRemoved   = "removed"
	FieldRetry     = "retry_count"

	// Status
	FieldStatus     = "status"
	FieldStatusFrom = "status_from"
	FieldStatusTo   = "status_to"
	FieldProgress   = "progress"

	// Network
	FieldAddress = "address"
	FieldHost    = "host"
)

// Context keys for propagating logging context
type contextKey string

const (
	executionIDKey contextKey = "logger_execution_id"
	taskIDKey      contextKey = "logger_task_id"
	componentKey   contextKey = "logger_component"
)

// WithExecutionID adds an execution ID to the context for logging
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

// WithTaskID adds a dispatch task ID to the context for logging
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if executionID, ok := ctx.Value(executionIDKey).(string); ok && executionID != "" {
		fields = append(fields, FieldExecutionID, executionID)
	}
	if taskID, ok := ctx.Value(taskIDKey).(string); ok && taskID != "" {
		fields = append(fields, FieldTaskID, taskID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Use this to get a logger that automatically includes execution_id, task_id, etc.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type WorkerPool struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewWorkerPool() *WorkerPool {
//	    return &WorkerPool{
//	        logger: logger.ComponentLogger("dispatch.worker"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	execLogger := logger.ChildLogger(baseLogger, "execution_id", exec.ID)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
