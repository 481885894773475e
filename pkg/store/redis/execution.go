package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// ExecutionRepository handles execution-related Redis operations.
type ExecutionRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(client redis.UniversalClient, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{client: client, logger: logger}
}

func executionKey(id string) string {
	return executionKeyPrefix + id
}

// Insert writes a new execution record and its index entries.
func (er *ExecutionRepository) Insert(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	ok, err := er.client.SetNX(ctx, executionKey(execution.ID), data, 0).Result()
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err))
	}

	if !ok {
		return store.NewExecutionError("Insert", execution.ID, store.ErrExecutionAlreadyExists)
	}

	score := float64(execution.StartedAt.UnixNano())

	pipe := er.client.Pipeline()
	pipe.ZAdd(ctx, executionIndexKey, redis.Z{Score: score, Member: execution.ID})
	pipe.ZAdd(ctx, workflowIndexPrefix+execution.WorkflowID, redis.Z{Score: score, Member: execution.ID})

	if !execution.Finished() {
		pipe.SAdd(ctx, runningSetPrefix+execution.WorkflowID, execution.ID)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("failed to index execution: %w", err))
	}

	return nil
}

// Update applies a partial change set inside a WATCH transaction so the
// read-modify-write cycle stays atomic per id.
func (er *ExecutionRepository) Update(ctx context.Context, id string, changes store.Changes) (*models.Execution, error) {
	var updated *models.Execution

	key := executionKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrExecutionNotFound
			}

			return err
		}

		var execution models.Execution

		err = json.Unmarshal(data, &execution)
		if err != nil {
			return fmt.Errorf("failed to unmarshal execution: %w", err)
		}

		if changes.Status != nil && !execution.Status.CanTransitionTo(*changes.Status) {
			return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, execution.Status, *changes.Status)
		}

		changes.Apply(&execution)

		newData, err := json.Marshal(&execution)
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)

			if execution.Finished() {
				pipe.SRem(ctx, runningSetPrefix+execution.WorkflowID, execution.ID)
			}

			return nil
		})
		if err != nil {
			return err
		}

		updated = &execution

		return nil
	}

	err := er.client.Watch(ctx, txf, key)
	if err != nil {
		return nil, store.NewExecutionError("Update", id, err)
	}

	return updated, nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	data, err := er.client.Get(ctx, executionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.NewExecutionError("GetByID", id, store.ErrExecutionNotFound)
		}

		return nil, store.NewExecutionError("GetByID", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, store.NewExecutionError("GetByID", id, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

// ListRecent returns up to limit executions matching the filter, ordered by
// started_at descending.
func (er *ExecutionRepository) ListRecent(ctx context.Context, filter store.Filter, limit int) ([]*models.Execution, error) {
	indexKey := executionIndexKey
	if filter.WorkflowID != "" {
		indexKey = workflowIndexPrefix + filter.WorkflowID
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := er.client.ZRevRange(ctx, indexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution index: %w", err)
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := er.GetByID(ctx, id)
		if err != nil {
			if store.IsExecutionNotFound(err) {
				continue // Deleted between index read and fetch
			}

			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

// CountRunning returns the number of non-terminal executions for a workflow.
func (er *ExecutionRepository) CountRunning(ctx context.Context, workflowID string) (int, error) {
	count, err := er.client.SCard(ctx, runningSetPrefix+workflowID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions: %w", err)
	}

	return int(count), nil
}

// Delete removes an execution record and its index entries.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	execution, err := er.GetByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := er.client.Pipeline()
	pipe.Del(ctx, executionKey(id))
	pipe.ZRem(ctx, executionIndexKey, id)
	pipe.ZRem(ctx, workflowIndexPrefix+execution.WorkflowID, id)
	pipe.SRem(ctx, runningSetPrefix+execution.WorkflowID, id)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return store.NewExecutionError("Delete", id, err)
	}

	return nil
}
