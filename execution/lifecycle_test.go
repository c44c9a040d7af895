package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wardentest "github.com/wardenhq/warden/internal/testing"
	"github.com/wardenhq/warden/internal/util"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *Store, *StatusLogStore, *LogStore) {
	t.Helper()
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	logStore := NewLogStore(db)
	statusLog := NewStatusLogStore(db)
	lc := NewLifecycle(store, logStore, statusLog, zap.NewNop().Sugar())
	return lc, store, statusLog, logStore
}

func TestApplyStatusTerminalSetsEndDateAndProgress(t *testing.T) {
	lc, store, _, _ := newTestLifecycle(t)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return fixed }

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusFinished, nil))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(fixed))
}

func TestApplyStatusExplicitProgressPreserved(t *testing.T) {
	lc, store, _, _ := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusFailed, util.Ptr(37)))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 37, got.Progress)
	assert.NotNil(t, got.EndDate)
}

func TestApplyStatusPreservesExistingEndDate(t *testing.T) {
	lc, store, _, _ := newTestLifecycle(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	exec := New("script-1", "user-1", nil)
	exec.Status = StatusFailed
	exec.EndDate = &first
	require.NoError(t, store.CreateExecution(ctx, exec))

	// Re-marking FAILED (monitor restart-loop re-check) keeps the original end_date
	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusFailed, nil))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(first))
}

func TestApplyStatusRejectsUnknownStatus(t *testing.T) {
	lc, store, statusLog, _ := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	err := lc.ApplyStatus(ctx, exec, Status("EXPLODED"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status, "execution is left untouched")

	logs, err := statusLog.Latest(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs, "no transition row for a rejected status")
}

func TestApplyStatusNonTerminalLeavesEndDate(t *testing.T) {
	lc, store, _, _ := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusRunning, nil))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.EndDate)
}

func TestApplyStatusWritesOneStatusLogPerTransition(t *testing.T) {
	lc, store, statusLog, _ := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusRunning, nil))
	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusFinished, nil))

	logs, err := statusLog.ListForExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, StatusPending, logs[0].StatusFrom)
	assert.Equal(t, StatusRunning, logs[0].StatusTo)
	assert.Equal(t, exec.ID, logs[0].ExecutionID)
	assert.Equal(t, 1, logs[0].Counts.Running)

	assert.Equal(t, StatusRunning, logs[1].StatusFrom)
	assert.Equal(t, StatusFinished, logs[1].StatusTo)
	assert.Equal(t, 1, logs[1].Counts.Finished)
	assert.Equal(t, 0, logs[1].Counts.Running)
}

func TestEndToEndLifecycle(t *testing.T) {
	lc, store, statusLog, _ := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-9", "user-2", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusRunning, nil))
	require.NoError(t, lc.ApplyStatus(ctx, exec, StatusFinished, nil))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.EndDate)

	logs, err := statusLog.ListForExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, StatusPending, logs[0].StatusFrom)
	assert.Equal(t, StatusRunning, logs[0].StatusTo)
	assert.Equal(t, StatusRunning, logs[1].StatusFrom)
	assert.Equal(t, StatusFinished, logs[1].StatusTo)
}

func TestStatusLogLatest(t *testing.T) {
	lc, store, statusLog, _ := newTestLifecycle(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exec := New("script-1", "user-1", nil)
		require.NoError(t, store.CreateExecution(ctx, exec))
		require.NoError(t, lc.ApplyStatus(ctx, exec, StatusRunning, nil))
	}

	latest, err := statusLog.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Greater(t, latest[0].ID, latest[1].ID)
}

func TestLogStoreAppendAndList(t *testing.T) {
	lc, store, _, logStore := newTestLifecycle(t)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, lc.AppendLog(ctx, exec.ID, "service started", LogLevelInfo))
	require.NoError(t, lc.AppendLog(ctx, exec.ID, "restart loop detected", LogLevelError))

	entries, err := logStore.ListForExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "service started", entries[0].Text)
	assert.Equal(t, LogLevelInfo, entries[0].Level)
	assert.Equal(t, "restart loop detected", entries[1].Text)
	assert.Equal(t, LogLevelError, entries[1].Level)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusFinished.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusReady.Terminal())
	assert.False(t, StatusRunning.Terminal())
}
