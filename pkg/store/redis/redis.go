// Package redis provides Redis-backed storage for workflows and execution
// records. Records are stored as JSON values with sorted-set indexes on
// started_at, which keeps ListRecent a single ZREVRANGE away.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowrelay/flowrelay/pkg/store"
)

const (
	executionKeyPrefix   = "flowrelay:executions:"
	executionIndexKey    = "flowrelay:executions:index"
	workflowIndexPrefix  = "flowrelay:executions:workflow:"
	runningSetPrefix     = "flowrelay:executions:running:"
	workflowKeyPrefix    = "flowrelay:workflows:"
	workflowCollectionID = "flowrelay:workflows"
)

// Persistence implements the storage layer for Redis.
type Persistence struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	executionRepo *ExecutionRepository
	workflowRepo  *WorkflowRepository
}

// NewPersistence creates a new Redis storage layer from a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:        client,
		logger:        logger,
		executionRepo: NewExecutionRepository(client, logger),
		workflowRepo:  NewWorkflowRepository(client, logger),
	}, nil
}

// Executions returns the execution repository.
func (p *Persistence) Executions() store.ExecutionRepository {
	return p.executionRepo
}

// Workflows returns the workflow repository.
func (p *Persistence) Workflows() store.WorkflowRepository {
	return p.workflowRepo
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
