package feed

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/pkg/channels/gochannel"
	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

func newTestFeed(t *testing.T) *WatermillFeed {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	f := NewWatermillFeed(pub, sub, slog.Default())
	t.Cleanup(func() {
		_ = f.Close()
	})

	return f
}

func testEvent(eventType EventType, executionID, workflowID string) Event {
	return Event{
		Type: eventType,
		Execution: &models.Execution{
			ID:         executionID,
			WorkflowID: workflowID,
			Status:     models.ExecutionStatusPending,
			StartedAt:  time.Now().UTC(),
		},
	}
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()

	select {
	case event, ok := <-sub.C():
		require.True(t, ok, "subscription channel closed unexpectedly")

		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")

		return Event{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	f := newTestFeed(t)
	ctx := context.Background()

	sub, err := f.Subscribe(ctx, store.Filter{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.Publish(ctx, testEvent(ExecutionInserted, "ex-1", "wf-1")))

	event := receiveEvent(t, sub)
	assert.Equal(t, ExecutionInserted, event.Type)
	assert.Equal(t, "ex-1", event.Execution.ID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestSubscribeFilterByWorkflow(t *testing.T) {
	f := newTestFeed(t)
	ctx := context.Background()

	sub, err := f.Subscribe(ctx, store.Filter{WorkflowID: "wf-2"})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.Publish(ctx, testEvent(ExecutionInserted, "ex-1", "wf-1")))
	require.NoError(t, f.Publish(ctx, testEvent(ExecutionInserted, "ex-2", "wf-2")))

	event := receiveEvent(t, sub)
	assert.Equal(t, "ex-2", event.Execution.ID)
}

func TestPerRecordOrderingPreserved(t *testing.T) {
	f := newTestFeed(t)
	ctx := context.Background()

	sub, err := f.Subscribe(ctx, store.Filter{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.Publish(ctx, testEvent(ExecutionInserted, "ex-1", "wf-1")))
	require.NoError(t, f.Publish(ctx, testEvent(ExecutionUpdated, "ex-1", "wf-1")))
	require.NoError(t, f.Publish(ctx, testEvent(ExecutionUpdated, "ex-1", "wf-1")))

	assert.Equal(t, ExecutionInserted, receiveEvent(t, sub).Type)
	assert.Equal(t, ExecutionUpdated, receiveEvent(t, sub).Type)
	assert.Equal(t, ExecutionUpdated, receiveEvent(t, sub).Type)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	f := newTestFeed(t)
	ctx := context.Background()

	first, err := f.Subscribe(ctx, store.Filter{})
	require.NoError(t, err)
	defer first.Close()

	second, err := f.Subscribe(ctx, store.Filter{})
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, f.Publish(ctx, testEvent(ExecutionInserted, "ex-1", "wf-1")))

	assert.Equal(t, "ex-1", receiveEvent(t, first).Execution.ID)
	assert.Equal(t, "ex-1", receiveEvent(t, second).Execution.ID)
}

func TestSubscriptionCloseClosesChannel(t *testing.T) {
	f := newTestFeed(t)

	sub, err := f.Subscribe(context.Background(), store.Filter{})
	require.NoError(t, err)

	sub.Close()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel was not closed")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	sub := &Subscription{ch: make(chan Event, 1)}

	sub.deliver(testEvent(ExecutionInserted, "ex-1", "wf-1"))
	sub.deliver(testEvent(ExecutionUpdated, "ex-1", "wf-1"))
	sub.deliver(testEvent(ExecutionUpdated, "ex-1", "wf-1"))

	assert.Equal(t, 2, sub.Dropped())
	assert.Len(t, sub.ch, 1)
}
