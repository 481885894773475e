package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

func newExecution(id, workflowID string, status models.ExecutionStatus, startedAt time.Time) *models.Execution {
	return &models.Execution{
		ID:           id,
		WorkflowID:   workflowID,
		Status:       status,
		StartedAt:    startedAt,
		InputPayload: map[string]any{"source": "test"},
	}
}

func TestExecutionInsertAndGet(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	execution := newExecution("ex-1", "wf-1", models.ExecutionStatusPending, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, execution))

	loaded, err := repo.GetByID(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
	assert.Equal(t, models.ExecutionStatusPending, loaded.Status)
	assert.Equal(t, map[string]any{"source": "test"}, loaded.InputPayload)
}

func TestExecutionInsertDuplicate(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	execution := newExecution("ex-1", "wf-1", models.ExecutionStatusPending, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, execution))

	err := repo.Insert(ctx, execution)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrExecutionAlreadyExists)
}

func TestExecutionGetMissing(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestExecutionUpdateTransitions(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	execution := newExecution("ex-1", "wf-1", models.ExecutionStatusPending, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, execution))

	running := models.ExecutionStatusRunning
	updated, err := repo.Update(ctx, "ex-1", store.Changes{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, updated.Status)

	success := models.ExecutionStatusSuccess
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(execution.StartedAt).Seconds()
	updated, err = repo.Update(ctx, "ex-1", store.Changes{
		Status:          &success,
		CompletedAt:     &completedAt,
		DurationSeconds: &duration,
		OutputPayload:   map[string]any{"ok": true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, map[string]any{"ok": true}, updated.OutputPayload)

	// Terminal records never re-transition.
	failed := models.ExecutionStatusFailed
	_, err = repo.Update(ctx, "ex-1", store.Changes{Status: &failed})
	require.Error(t, err)
	assert.True(t, store.IsInvalidTransition(err))
}

func TestExecutionListRecent(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, newExecution("ex-old", "wf-1", models.ExecutionStatusSuccess, base.Add(-3*time.Minute))))
	require.NoError(t, repo.Insert(ctx, newExecution("ex-mid", "wf-2", models.ExecutionStatusFailed, base.Add(-2*time.Minute))))
	require.NoError(t, repo.Insert(ctx, newExecution("ex-new", "wf-1", models.ExecutionStatusRunning, base.Add(-1*time.Minute))))

	executions, err := repo.ListRecent(ctx, store.Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "ex-new", executions[0].ID)
	assert.Equal(t, "ex-mid", executions[1].ID)

	filtered, err := repo.ListRecent(ctx, store.Filter{WorkflowID: "wf-1"}, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "ex-new", filtered[0].ID)
	assert.Equal(t, "ex-old", filtered[1].ID)
}

func TestExecutionCountRunning(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, repo.Insert(ctx, newExecution("ex-1", "wf-1", models.ExecutionStatusPending, base)))
	require.NoError(t, repo.Insert(ctx, newExecution("ex-2", "wf-1", models.ExecutionStatusRunning, base)))
	require.NoError(t, repo.Insert(ctx, newExecution("ex-3", "wf-1", models.ExecutionStatusSuccess, base)))
	require.NoError(t, repo.Insert(ctx, newExecution("ex-4", "wf-2", models.ExecutionStatusRunning, base)))

	count, err := repo.CountRunning(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExecutionDelete(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newExecution("ex-1", "wf-1", models.ExecutionStatusSuccess, time.Now().UTC())))
	require.NoError(t, repo.Delete(ctx, "ex-1"))

	_, err := repo.GetByID(ctx, "ex-1")
	assert.True(t, store.IsExecutionNotFound(err))

	err = repo.Delete(ctx, "ex-1")
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestExecutionIDValidation(t *testing.T) {
	repo := NewExecutionRepository(t.TempDir())
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "../escape")
	require.Error(t, err)

	err = repo.Insert(ctx, newExecution("", "wf-1", models.ExecutionStatusPending, time.Now().UTC()))
	require.Error(t, err)
}
