package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// WorkflowRepository handles workflow-related Redis operations.
type WorkflowRepository struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(client redis.UniversalClient, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{client: client, logger: logger}
}

func workflowKey(id string) string {
	return workflowKeyPrefix + id
}

// GetByID returns a workflow by its ID, including its running execution count.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	data, err := wr.client.Get(ctx, workflowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	running, err := wr.client.SCard(ctx, runningSetPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count running executions for workflow %s: %w", id, err)
	}

	workflow.RunningCount = int(running)

	return &workflow, nil
}

// List returns all workflows sorted by name.
func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := wr.client.SMembers(ctx, workflowCollectionID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.GetByID(ctx, id)
		if err != nil {
			if store.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].Name < workflows[j].Name
	})

	return workflows, nil
}

// Save creates or replaces a workflow record.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	pipe := wr.client.Pipeline()
	pipe.Set(ctx, workflowKey(workflow.ID), data, 0)
	pipe.SAdd(ctx, workflowCollectionID, workflow.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Touch records the time a workflow was last executed.
func (wr *WorkflowRepository) Touch(ctx context.Context, id string, lastExecutedAt time.Time) error {
	key := workflowKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrWorkflowNotFound
			}

			return err
		}

		var workflow models.Workflow

		err = json.Unmarshal(data, &workflow)
		if err != nil {
			return fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
		}

		workflow.LastExecutedAt = &lastExecutedAt
		workflow.UpdatedAt = lastExecutedAt

		newData, err := json.Marshal(&workflow)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)

			return nil
		})

		return err
	}

	err := wr.client.Watch(ctx, txf, key)
	if err != nil {
		return fmt.Errorf("failed to touch workflow %s: %w", id, err)
	}

	return nil
}
