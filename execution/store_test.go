package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardentest "github.com/wardenhq/warden/internal/testing"
	"github.com/wardenhq/warden/internal/util"
)

func TestCreateAndGetExecution(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := New("script-7", "user-1", []byte(`{"input":"ATCG"}`))
	require.NoError(t, store.CreateExecution(ctx, exec))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, "script-7", got.ScriptID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.JSONEq(t, `{"input":"ATCG"}`, string(got.Params))
	assert.Nil(t, got.EndDate)
}

func TestGetExecutionNotFound(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)

	_, err := store.GetExecution(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateExecutionNotFound(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)

	exec := New("script-1", "user-1", nil)
	err := store.UpdateExecution(context.Background(), exec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProgressResultsLeavesStatusAndEndDate(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	exec.Status = StatusRunning
	require.NoError(t, store.CreateExecution(ctx, exec))

	require.NoError(t, store.UpdateProgressResults(ctx, exec.ID, 40, []byte(`{"partial":true}`)))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.JSONEq(t, `{"partial":true}`, string(got.Results))
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.EndDate)
}

func TestListExecutionsFilters(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, status Status, started time.Time, user string) *Execution {
		return &Execution{
			ID:        id,
			ScriptID:  "script-1",
			UserID:    user,
			Status:    status,
			StartDate: started,
		}
	}

	execs := []*Execution{
		mk("e-running", StatusRunning, now.Add(-1*time.Hour), "alice"),
		mk("e-pending", StatusPending, now.Add(-2*time.Hour), "alice"),
		mk("e-old", StatusRunning, now.Add(-48*time.Hour), "bob"),
		mk("e-finished", StatusFinished, now.Add(-3*time.Hour), "bob"),
	}
	for _, e := range execs {
		require.NoError(t, store.CreateExecution(ctx, e))
	}

	// By status
	got, err := store.ListExecutions(ctx, Filter{Statuses: []Status{StatusRunning}})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// By status + started-since, ordered most recent first
	since := now.Add(-24 * time.Hour)
	got, err = store.ListExecutions(ctx, Filter{
		Statuses:     []Status{StatusRunning, StatusPending},
		StartedSince: &since,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-running", got[0].ID)
	assert.Equal(t, "e-pending", got[1].ID)

	// By user
	got, err = store.ListExecutions(ctx, Filter{UserID: "bob"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Limit
	got, err = store.ListExecutions(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e-running", got[0].ID)
}

func TestCountByStatus(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	statuses := []Status{StatusPending, StatusRunning, StatusRunning, StatusFailed}
	for i, st := range statuses {
		exec := New("script-1", "user-1", nil)
		exec.Status = st
		if st.Terminal() {
			exec.EndDate = util.Ptr(time.Now())
		}
		require.NoError(t, store.CreateExecution(ctx, exec), "execution %d", i)
	}

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 2, counts.Running)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 0, counts.Finished)
	assert.Equal(t, 4, counts.Total())
}

func TestDeleteExecution(t *testing.T) {
	db := wardentest.CreateTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	exec := New("script-1", "user-1", nil)
	require.NoError(t, store.CreateExecution(ctx, exec))
	require.NoError(t, store.DeleteExecution(ctx, exec.ID))

	err := store.DeleteExecution(ctx, exec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
