package publishing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/mocks"
	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

func testExecution() *models.Execution {
	return &models.Execution{
		ID:         "ex-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusPending,
		StartedAt:  time.Now().UTC(),
	}
}

func TestInsertPublishesEvent(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	execution := testExecution()

	inner.On("Insert", mock.Anything, execution).Return(nil)
	changeFeed.On("Publish", mock.Anything, mock.MatchedBy(func(event feed.Event) bool {
		return event.Type == feed.ExecutionInserted && event.Execution.ID == "ex-1"
	})).Return(nil)

	require.NoError(t, repo.Insert(context.Background(), execution))

	inner.AssertExpectations(t)
	changeFeed.AssertExpectations(t)
}

func TestInsertFailureDoesNotPublish(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	execution := testExecution()
	inner.On("Insert", mock.Anything, execution).Return(store.ErrStoreUnavailable)

	err := repo.Insert(context.Background(), execution)
	require.Error(t, err)

	changeFeed.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestUpdatePublishesPostWriteRecord(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	running := models.ExecutionStatusRunning
	updated := testExecution()
	updated.Status = running

	inner.On("Update", mock.Anything, "ex-1", mock.Anything).Return(updated, nil)
	changeFeed.On("Publish", mock.Anything, mock.MatchedBy(func(event feed.Event) bool {
		return event.Type == feed.ExecutionUpdated && event.Execution.Status == running
	})).Return(nil)

	result, err := repo.Update(context.Background(), "ex-1", store.Changes{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, running, result.Status)

	changeFeed.AssertExpectations(t)
}

func TestPublishFailureNeverFailsWrite(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	execution := testExecution()
	inner.On("Insert", mock.Anything, execution).Return(nil)
	changeFeed.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	assert.NoError(t, repo.Insert(context.Background(), execution))
}

func TestDeletePublishesRecord(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	execution := testExecution()
	inner.On("GetByID", mock.Anything, "ex-1").Return(execution, nil)
	inner.On("Delete", mock.Anything, "ex-1").Return(nil)
	changeFeed.On("Publish", mock.Anything, mock.MatchedBy(func(event feed.Event) bool {
		return event.Type == feed.ExecutionDeleted && event.Execution.ID == "ex-1"
	})).Return(nil)

	require.NoError(t, repo.Delete(context.Background(), "ex-1"))

	inner.AssertExpectations(t)
	changeFeed.AssertExpectations(t)
}

func TestDeleteMissingDoesNotPublish(t *testing.T) {
	inner := &mocks.MockExecutionRepository{}
	changeFeed := &mocks.MockFeed{}
	repo := NewRepository(inner, changeFeed, slog.Default())

	inner.On("GetByID", mock.Anything, "ex-1").Return(nil, store.ErrExecutionNotFound)

	err := repo.Delete(context.Background(), "ex-1")
	require.Error(t, err)

	changeFeed.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
