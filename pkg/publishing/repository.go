// Package publishing decorates an execution repository so every successful
// write is announced on the change feed. Observers stay in sync without
// polling; a publish failure never fails the write itself.
package publishing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// Repository wraps a store.ExecutionRepository with change feed publication.
type Repository struct {
	inner  store.ExecutionRepository
	feed   feed.Feed
	logger *slog.Logger
}

// NewRepository creates a publishing repository.
func NewRepository(inner store.ExecutionRepository, changeFeed feed.Feed, logger *slog.Logger) *Repository {
	return &Repository{
		inner:  inner,
		feed:   changeFeed,
		logger: logger.With("module", "publishing"),
	}
}

// Insert writes the record and announces an insert event.
func (r *Repository) Insert(ctx context.Context, execution *models.Execution) error {
	err := r.inner.Insert(ctx, execution)
	if err != nil {
		return err
	}

	r.publish(ctx, feed.ExecutionInserted, execution)

	return nil
}

// Update applies the changes and announces an update event carrying the
// post-write record.
func (r *Repository) Update(ctx context.Context, id string, changes store.Changes) (*models.Execution, error) {
	updated, err := r.inner.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, feed.ExecutionUpdated, updated)

	return updated, nil
}

// Delete removes the record and announces a delete event.
func (r *Repository) Delete(ctx context.Context, id string) error {
	// The record is fetched first so the delete event can carry it.
	execution, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = r.inner.Delete(ctx, id)
	if err != nil {
		return err
	}

	r.publish(ctx, feed.ExecutionDeleted, execution)

	return nil
}

// GetByID delegates to the wrapped repository.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	return r.inner.GetByID(ctx, id)
}

// ListRecent delegates to the wrapped repository.
func (r *Repository) ListRecent(ctx context.Context, filter store.Filter, limit int) ([]*models.Execution, error) {
	return r.inner.ListRecent(ctx, filter, limit)
}

// CountRunning delegates to the wrapped repository.
func (r *Repository) CountRunning(ctx context.Context, workflowID string) (int, error) {
	return r.inner.CountRunning(ctx, workflowID)
}

func (r *Repository) publish(ctx context.Context, eventType feed.EventType, execution *models.Execution) {
	event := feed.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Execution: execution.Clone(),
	}

	err := r.feed.Publish(ctx, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish change feed event",
			"event_type", eventType,
			"execution_id", execution.ID,
			"error", err,
		)
	}
}
