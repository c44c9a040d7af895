package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wardenhq/warden/execution"
	wardentest "github.com/wardenhq/warden/internal/testing"
	"github.com/wardenhq/warden/runtime"
)

type fixture struct {
	store     *execution.Store
	logStore  *execution.LogStore
	lifecycle *execution.Lifecycle
	fake      *runtime.Fake
	sweeper   *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := wardentest.CreateTestDB(t)
	store := execution.NewStore(db)
	logStore := execution.NewLogStore(db)
	statusLog := execution.NewStatusLogStore(db)
	lifecycle := execution.NewLifecycle(store, logStore, statusLog, zap.NewNop().Sugar())
	fake := runtime.NewFake()

	return &fixture{
		store:     store,
		logStore:  logStore,
		lifecycle: lifecycle,
		fake:      fake,
		sweeper:   NewSweeper(store, lifecycle, fake, DefaultConfig(), zap.NewNop().Sugar()),
	}
}

func (f *fixture) createExecution(t *testing.T, status execution.Status, started time.Time, ended *time.Time) *execution.Execution {
	t.Helper()

	exec := execution.New("script-1", "user-1", nil)
	exec.Status = status
	exec.StartDate = started
	exec.EndDate = ended
	require.NoError(t, f.store.CreateExecution(context.Background(), exec))
	return exec
}

func TestSweepStaleForceFailsOldExecutions(t *testing.T) {
	f := newFixture(t)
	stale := f.createExecution(t, execution.StatusRunning, time.Now().Add(-80*time.Hour), nil)
	f.fake.AddService(stale.ID, runtime.TaskStatus{State: runtime.TaskStateRunning, DesiredState: runtime.TaskStateRunning})
	f.fake.AddContainer(stale.ID)

	result, err := f.sweeper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	assert.Equal(t, 1, result.ResourcesRemoved)

	got, err := f.store.GetExecution(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, got.Status)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, 100, got.Progress)

	logs, err := f.logStore.ListForExecution(context.Background(), stale.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1].Text, "stale cleanup")

	assert.Empty(t, f.fake.Services)
	assert.Empty(t, f.fake.Containers)
}

func TestSweepStaleIncludesCancelled(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-79 * time.Hour)
	cancelled := f.createExecution(t, execution.StatusCancelled, time.Now().Add(-80*time.Hour), &ended)

	result, err := f.sweeper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)

	got, err := f.store.GetExecution(context.Background(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, got.Status)
}

func TestSweepStaleBoundary(t *testing.T) {
	f := newFixture(t)

	// 1s younger than the cutoff: untouched
	young := f.createExecution(t, execution.StatusRunning, time.Now().Add(-72*time.Hour+time.Second), nil)
	// 1s older: reclaimed
	old := f.createExecution(t, execution.StatusRunning, time.Now().Add(-72*time.Hour-time.Second), nil)

	result, err := f.sweeper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)

	gotYoung, err := f.store.GetExecution(context.Background(), young.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRunning, gotYoung.Status)

	gotOld, err := f.store.GetExecution(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, gotOld.Status)
}

func TestSweepStaleLeavesCompletedAndRecentAlone(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-75 * time.Hour)
	finished := f.createExecution(t, execution.StatusFinished, time.Now().Add(-80*time.Hour), &ended)
	recent := f.createExecution(t, execution.StatusRunning, time.Now().Add(-time.Hour), nil)

	result, err := f.sweeper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reclaimed)

	gotFinished, err := f.store.GetExecution(context.Background(), finished.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFinished, gotFinished.Status)

	gotRecent, err := f.store.GetExecution(context.Background(), recent.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRunning, gotRecent.Status)
}

func TestSweepStalePropagatesStatusPersistenceFailure(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := execution.NewStore(db)
	logStore := execution.NewLogStore(db)
	statusLog := execution.NewStatusLogStore(db)
	lifecycle := execution.NewLifecycle(store, logStore, statusLog, zap.NewNop().Sugar())
	sweeper := NewSweeper(store, lifecycle, runtime.NewFake(), DefaultConfig(), zap.NewNop().Sugar())

	exec := execution.New("script-1", "user-1", nil)
	exec.Status = execution.StatusRunning
	exec.StartDate = time.Now().Add(-80 * time.Hour)
	require.NoError(t, store.CreateExecution(context.Background(), exec))

	// Break transition logging so the force-fail cannot be fully recorded
	_, err := db.Exec(`DROP TABLE status_logs`)
	require.NoError(t, err)

	result, err := sweeper.SweepStale(context.Background())
	require.Error(t, err, "a sweep that cannot persist transitions must fail the pass")
	assert.Equal(t, 0, result.Reclaimed)
}

func TestSweepStaleRuntimeErrorDoesNotAbortMutation(t *testing.T) {
	f := newFixture(t)
	stale := f.createExecution(t, execution.StatusRunning, time.Now().Add(-80*time.Hour), nil)
	f.fake.ListServicesErr = assert.AnError
	f.fake.ListContainersErr = assert.AnError

	result, err := f.sweeper.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed, "forced mutation survives runtime failures")
	assert.Equal(t, 0, result.ResourcesRemoved)

	got, err := f.store.GetExecution(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, got.Status)
}

func TestSweepFinishedRemovesResourcesOnly(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-2 * time.Hour)
	finished := f.createExecution(t, execution.StatusFinished, time.Now().Add(-5*time.Hour), &ended)
	f.fake.AddService(finished.ID)
	f.fake.AddContainer(finished.ID)

	result, err := f.sweeper.SweepFinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reclaimed)
	assert.Equal(t, 1, result.ResourcesRemoved)

	got, err := f.store.GetExecution(context.Background(), finished.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFinished, got.Status, "status untouched")
	assert.Empty(t, f.fake.Services)
	assert.Empty(t, f.fake.Containers)
}

func TestSweepFinishedSkipsOldCompletions(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-30 * time.Hour)
	old := f.createExecution(t, execution.StatusFinished, time.Now().Add(-40*time.Hour), &ended)
	f.fake.AddService(old.ID)

	result, err := f.sweeper.SweepFinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ResourcesRemoved)
	assert.Len(t, f.fake.Services, 1, "completions outside the window are left alone")
}

func TestSweepFinishedNothingLeftIsNotRemoved(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-time.Hour)
	f.createExecution(t, execution.StatusFinished, time.Now().Add(-2*time.Hour), &ended)
	// No resources seeded: already gone

	result, err := f.sweeper.SweepFinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ResourcesRemoved, "already-gone resources are not counted")
}

func TestSweepFailedRemovesOldFailedResources(t *testing.T) {
	f := newFixture(t)
	ended := time.Now().Add(-15 * 24 * time.Hour)
	old := f.createExecution(t, execution.StatusFailed, time.Now().Add(-16*24*time.Hour), &ended)
	f.fake.AddContainer(old.ID)

	recentEnded := time.Now().Add(-2 * 24 * time.Hour)
	recent := f.createExecution(t, execution.StatusFailed, time.Now().Add(-3*24*time.Hour), &recentEnded)
	f.fake.AddContainer(recent.ID)

	result, err := f.sweeper.SweepFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reclaimed)
	assert.Equal(t, 1, result.ResourcesRemoved)

	got, err := f.store.GetExecution(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, got.Status, "status untouched")

	_, stillThere := f.fake.Containers["ctr-"+recent.ID]
	assert.True(t, stillThere, "recent failures keep their resources for inspection")
}

func TestRemoveResourcesIdempotent(t *testing.T) {
	f := newFixture(t)
	exec := f.createExecution(t, execution.StatusRunning, time.Now(), nil)
	f.fake.AddService(exec.ID)

	assert.True(t, f.sweeper.removeResources(context.Background(), exec.ID))
	assert.False(t, f.sweeper.removeResources(context.Background(), exec.ID), "second removal finds nothing")
}
