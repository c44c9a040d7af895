package dispatch

import "github.com/wardenhq/warden/errors"

// errRetryable is the sentinel marking handler errors that should be
// re-queued with backoff instead of failing the task immediately.
var errRetryable = errors.New("retryable")

// Retryable marks err so the worker pool re-queues the task with backoff
// (until the configured retry budget is exhausted).
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errRetryable)
}

// IsRetryable reports whether err was marked with Retryable
func IsRetryable(err error) bool {
	return errors.Is(err, errRetryable)
}
