package execution

import "github.com/wardenhq/warden/errors"

// Error taxonomy for the lifecycle core.
//
// Only state-machine and audit-log persistence failures propagate uncaught;
// runtime/compute failures are degraded to logged, aggregated errors. Callers
// classify with errors.Is against these sentinels, which survive wrapping.
var (
	// ErrNotFound indicates the execution does not exist
	ErrNotFound = errors.Mark(errors.New("execution not found"), errors.ErrNotFound)

	// ErrConflict indicates an invalid transition attempt (e.g. cancelling a terminal execution)
	ErrConflict = errors.Mark(errors.New("execution state conflict"), errors.ErrConflict)

	// ErrForbidden indicates the principal may not act on this execution
	ErrForbidden = errors.Mark(errors.New("execution access forbidden"), errors.ErrForbidden)

	// ErrRuntimeUnavailable indicates the container runtime is unreachable.
	// Periodic passes degrade to a logged no-op when they see this.
	ErrRuntimeUnavailable = errors.Mark(errors.New("container runtime unavailable"), errors.ErrServiceUnavailable)
)

// NotFoundf creates a formatted error marked as ErrNotFound
func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Conflictf creates a formatted error marked as ErrConflict.
// Messages should name the execution's current state.
func Conflictf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// Forbiddenf creates a formatted error marked as ErrForbidden
func Forbiddenf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrForbidden)
}

// RuntimeUnavailable marks err as a runtime-unreachable condition
func RuntimeUnavailable(err error) error {
	return errors.Mark(err, ErrRuntimeUnavailable)
}
