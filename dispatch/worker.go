package dispatch

import (
	"context"
	"database/sql"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/db"
	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/metrics"
)

const (
	// MaxOrphanedTasks limits how many orphaned tasks we attempt to recover
	// on startup to avoid overwhelming the system after a crash
	MaxOrphanedTasks = 1000

	// MaxRetries is the maximum number of retry attempts for retryable failures
	MaxRetries = 2
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers          int           `json:"workers"`            // Number of concurrent workers
	PollInterval     time.Duration `json:"poll_interval"`      // How often to check for runnable tasks
	ShutdownTimeout  time.Duration `json:"shutdown_timeout"`   // How long Stop waits for workers to drain
	MaxMemoryPercent float64       `json:"max_memory_percent"` // Skip dequeue above this system memory usage
	MaxRetries       int           `json:"max_retries"`        // Retry attempts for retryable failures
	RetryBackoff     time.Duration `json:"retry_backoff"`      // Base backoff, doubled per retry

	// SkipRecovery disables orphan recovery on Start. Set it for short-lived
	// pools sharing the queue with a daemon, whose running tasks would
	// otherwise be re-queued and executed twice.
	SkipRecovery bool `json:"skip_recovery"`
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:          2,
		PollInterval:     5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		MaxMemoryPercent: 80.0,
		MaxRetries:       MaxRetries,
		RetryBackoff:     10 * time.Second,
	}
}

// WorkerPool manages a pool of workers that process dispatch tasks
type WorkerPool struct {
	store      *Store
	registry   *Registry
	dispatcher *Dispatcher
	config     WorkerPoolConfig
	parentCtx  context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.SugaredLogger
	mu         sync.Mutex
}

// NewWorkerPool creates a worker pool processing tasks from the dispatcher's
// store, routing them through the registry.
// IMPORTANT: Callers must register handlers before calling Start().
func NewWorkerPool(ctx context.Context, dispatcher *Dispatcher, registry *Registry, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerPoolConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultWorkerPoolConfig().ShutdownTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultWorkerPoolConfig().RetryBackoff
	}

	return &WorkerPool{
		store:      dispatcher.Store(),
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     log.Named("dispatch"),
	}
}

// Start recovers orphaned tasks and begins processing with the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// After Stop() the context is cancelled; recreate it from the parent
	// before spawning workers
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.mu.Unlock()

	if wp.config.SkipRecovery {
		wp.logger.Debugw("Orphan recovery disabled for this pool")
	} else if err := wp.recoverOrphanedTasks(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned tasks", "error", err)
		// Continue starting workers even if recovery fails
	}

	wp.logger.Infow("Starting dispatch workers",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval)

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels all workers and waits for in-flight tasks to finish,
// up to the configured shutdown timeout
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Infow("Dispatch workers stopped cleanly")
	case <-time.After(wp.config.ShutdownTimeout):
		wp.logger.Warnw("Dispatch worker shutdown timed out, tasks may still be running",
			"timeout", wp.config.ShutdownTimeout)
	}
}

// recoverOrphanedTasks re-queues tasks left in "running" state by a crash
// or ungraceful shutdown
func (wp *WorkerPool) recoverOrphanedTasks() error {
	orphaned, err := wp.store.ListOrphaned(wp.ctx, MaxOrphanedTasks)
	if err != nil {
		return errors.Wrap(err, "failed to list orphaned tasks")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.logger.Warnw("Recovering tasks orphaned by previous shutdown", "count", len(orphaned))

	for _, task := range orphaned {
		task.Status = TaskStatusQueued
		task.Error = "" // clear stale error message
		task.StartedAt = nil
		if err := wp.store.UpdateTask(wp.ctx, task); err != nil {
			wp.logger.Warnw("Failed to recover orphaned task",
				"task_id", task.ID, "kind", task.Kind, "error", err)
			continue
		}
		wp.logger.Infow("Recovered orphaned task", "task_id", task.ID, "kind", task.Kind)
	}
	return nil
}

// worker polls the store for runnable tasks and executes them
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	// Consecutive-error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextTask(); err != nil {
				select {
				case <-wp.ctx.Done():
					// Shutting down, exit silently
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
					// Database closed during shutdown
					return
				}

				errorCount++
				wp.logger.Errorw("Worker error processing task",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off after consecutive errors",
						"worker_id", id, "backoff", backoff)
					time.Sleep(backoff)
					backoff = min(backoff*2, maxBackoff)
				}
			} else {
				errorCount = 0
				backoff = time.Second
			}
		}
	}
}

// processNextTask dequeues and executes one task, if any is runnable
func (wp *WorkerPool) processNextTask() error {
	select {
	case <-wp.ctx.Done():
		return nil // shutting down, don't pick up new work
	default:
	}

	// Skip this cycle under memory pressure rather than stacking more work
	// onto an already loaded host
	if usage, ok := memoryUsagePercent(); ok && wp.config.MaxMemoryPercent > 0 && usage > wp.config.MaxMemoryPercent {
		wp.logger.Warnw("Skipping dispatch cycle under memory pressure",
			"memory_percent", usage,
			"max_memory_percent", wp.config.MaxMemoryPercent)
		return nil
	}

	task, err := wp.store.NextRunnable(wp.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch next runnable task")
	}
	if task == nil {
		return nil // queue empty
	}

	claimed, err := wp.store.ClaimTask(wp.ctx, task)
	if err != nil {
		return errors.Wrapf(err, "failed to claim task %s", task.ID)
	}
	if !claimed {
		// Another worker claimed it between the select and the update;
		// the next poll will pick up whatever is left
		return nil
	}

	wp.executeTask(task)
	return nil
}

// executeTask runs the task's handler and persists the outcome.
// Handler panics fail the task instead of crashing the worker.
func (wp *WorkerPool) executeTask(task *Task) {
	start := time.Now()

	result, err := wp.safeExecute(task)

	if err != nil {
		select {
		case <-wp.ctx.Done():
			// Cancelled during shutdown; re-queue instead of failing so the
			// task runs again on the next start
			task.Status = TaskStatusQueued
			task.StartedAt = nil
			if updateErr := wp.store.UpdateTask(context.Background(), task); updateErr != nil {
				wp.logger.Errorw("Failed to re-queue task cancelled by shutdown",
					"task_id", task.ID, "error", updateErr)
			}
			return
		default:
		}

		if IsRetryable(err) && task.RetryCount < wp.config.MaxRetries {
			backoff := wp.config.RetryBackoff * (1 << task.RetryCount)
			task.Requeue(backoff)
			wp.logger.Warnw("Task failed, retrying",
				"task_id", task.ID,
				"kind", task.Kind,
				"retry", task.RetryCount,
				"backoff", backoff,
				"error", err)
		} else {
			task.Fail(err)
			wp.logger.Errorw("Task failed",
				"task_id", task.ID,
				"kind", task.Kind,
				"retries", task.RetryCount,
				"error", err)
		}
	} else {
		task.Succeed(result)
		wp.logger.Debugw("Task succeeded",
			"task_id", task.ID,
			"kind", task.Kind,
			"duration", time.Since(start))
	}

	// Persist with a fresh context so an outcome reached during shutdown
	// still lands in the store
	if err := wp.store.UpdateTask(context.Background(), task); err != nil {
		wp.logger.Errorw("Failed to persist task outcome",
			"task_id", task.ID, "status", task.Status, "error", err)
		return
	}

	if task.Status.Terminal() {
		metrics.DispatchTasks.WithLabelValues(task.Kind, string(task.Status)).Inc()
		metrics.DispatchTaskDuration.WithLabelValues(task.Kind).Observe(time.Since(start).Seconds())
		wp.dispatcher.Notify(task)
	}
}

// safeExecute runs the handler with panic recovery
func (wp *WorkerPool) safeExecute(task *Task) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Task handler panicked",
				"task_id", task.ID,
				"kind", task.Kind,
				"panic", r,
				"stack", string(debug.Stack()))
			err = errors.Newf("handler for %s panicked: %v", task.Kind, r)
		}
	}()

	return wp.registry.Execute(wp.ctx, task)
}
