package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wardentest "github.com/wardenhq/warden/internal/testing"
)

func TestSubmitPersistsQueuedTask(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	handle, err := d.Submit(ctx, KindRuntimeStop, []byte(`{"execution_id":"abc"}`), "cancel")
	require.NoError(t, err)

	task, err := d.Store().GetTask(ctx, handle.TaskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusQueued, task.Status)
	assert.Equal(t, "cancel", task.Source)
}

func TestWaitReturnsImmediatelyForTerminalTask(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	handle, err := d.Submit(ctx, KindMonitorPass, nil, "test")
	require.NoError(t, err)

	task, err := d.Store().GetTask(ctx, handle.TaskID)
	require.NoError(t, err)
	task.Succeed([]byte(`{"ok":true}`))
	require.NoError(t, d.Store().UpdateTask(ctx, task))

	got, err := handle.Wait(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSucceeded, got.Status)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
}

func TestWaitReceivesNotification(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	handle, err := d.Submit(ctx, KindMonitorPass, nil, "test")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		task, err := d.Store().GetTask(ctx, handle.TaskID)
		if err != nil {
			return
		}
		task.Fail(assert.AnError)
		if err := d.Store().UpdateTask(ctx, task); err != nil {
			return
		}
		d.Notify(task)
	}()

	got, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestWaitTimesOut(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	handle, err := d.Submit(ctx, KindRuntimeStop, nil, "test")
	require.NoError(t, err)

	_, err = handle.Wait(ctx, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))

	handle, err := d.Submit(context.Background(), KindRuntimeStop, nil, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = handle.Wait(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerExecutesTaskAndNotifiesWaiter(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.echo",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			return task.Args, nil
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle, err := d.Submit(ctx, "test.echo", []byte(`{"hello":"world"}`), "test")
	require.NoError(t, err)

	task, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSucceeded, task.Status)
	assert.JSONEq(t, `{"hello":"world"}`, string(task.Result))
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.FinishedAt)
}

func TestWorkerRetriesRetryableErrors(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	attempts := 0
	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.flaky",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			attempts++
			if attempts < 2 {
				return nil, Retryable(assert.AnError)
			}
			return []byte(`{"attempts":2}`), nil
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RetryBackoff = 10 * time.Millisecond

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle, err := d.Submit(ctx, "test.flaky", nil, "test")
	require.NoError(t, err)

	task, err := handle.Wait(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSucceeded, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, 2, attempts)
}

func TestWorkerFailsAfterRetryBudgetExhausted(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.broken",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			return nil, Retryable(assert.AnError)
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.MaxRetries = 1

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle, err := d.Submit(ctx, "test.broken", nil, "test")
	require.NoError(t, err)

	task, err := handle.Wait(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.NotEmpty(t, task.Error)
}

func TestWorkerFailsNonRetryableImmediately(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.fatal",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			return nil, assert.AnError
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle, err := d.Submit(ctx, "test.fatal", nil, "test")
	require.NoError(t, err)

	task, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, 0, task.RetryCount)
}

func TestWorkerRecoversFromHandlerPanic(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.panic",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			panic("boom")
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle, err := d.Submit(ctx, "test.panic", nil, "test")
	require.NoError(t, err)

	task, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "panicked")
}

func TestWorkerStartRecoversOrphanedTasks(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	// Simulate a task left running by a crashed process
	orphan := NewTask("test.echo", []byte(`{}`), "test")
	orphan.Start()
	orphan.Error = "stale"
	require.NoError(t, d.Store().CreateTask(ctx, orphan))

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.echo",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			return task.Args, nil
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	defer pool.Stop()

	handle := &Handle{TaskID: orphan.ID, dispatcher: d}
	task, err := handle.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSucceeded, task.Status)
	assert.Empty(t, task.Error)
}

func TestWorkerStartSkipRecoveryLeavesRunningTasksAlone(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	// A task another pool is actively executing against the shared queue
	inflight := NewTask("test.echo", []byte(`{}`), "test")
	inflight.Start()
	require.NoError(t, d.Store().CreateTask(ctx, inflight))

	registry := NewRegistry()
	registry.Register(HandlerFunc{
		Kind: "test.echo",
		Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
			return task.Args, nil
		},
	})

	cfg := DefaultWorkerPoolConfig()
	cfg.Workers = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.SkipRecovery = true

	pool := NewWorkerPool(ctx, d, registry, cfg, zap.NewNop().Sugar())
	pool.Start()
	time.Sleep(100 * time.Millisecond)
	pool.Stop()

	got, err := d.Store().GetTask(ctx, inflight.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, got.Status, "in-flight task of another pool must not be re-queued")
	require.NotNil(t, got.StartedAt)
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Execute(context.Background(), NewTask("nope", nil, "test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")
}

func TestRegistryPanicsOnDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	h := HandlerFunc{Kind: "dup", Fn: func(ctx context.Context, task *Task) (json.RawMessage, error) {
		return nil, nil
	}}

	registry.Register(h)
	assert.Panics(t, func() { registry.Register(h) })
}

func TestSchedulerDeduplicatesActiveTasks(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	d := NewDispatcher(NewStore(db))
	ctx := context.Background()

	s := NewScheduler(ctx, d, []Schedule{{Kind: KindMonitorPass, Period: time.Hour}}, zap.NewNop().Sugar())

	s.tick(s.schedules[0])
	s.tick(s.schedules[0])

	counts, err := d.Store().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[TaskStatusQueued], "second tick should be suppressed while first task is queued")
}
