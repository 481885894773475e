// Package store provides the data storage abstraction layer for workflows and
// execution records.
package store

import (
	"context"
	"time"

	"github.com/flowrelay/flowrelay/pkg/models"
)

// Filter restricts a listing or subscription to a single workflow. The zero
// value matches every execution.
type Filter struct {
	WorkflowID string
}

// Matches reports whether the execution passes the filter.
func (f Filter) Matches(execution *models.Execution) bool {
	return f.WorkflowID == "" || f.WorkflowID == execution.WorkflowID
}

// Changes describes a partial update to an execution record. Nil fields are
// left untouched.
type Changes struct {
	Status              *models.ExecutionStatus
	CompletedAt         *time.Time
	DurationSeconds     *float64
	OutputPayload       map[string]any
	ErrorMessage        *string
	ExternalExecutionID *string
}

// Apply writes the non-nil changes onto the execution.
func (c Changes) Apply(execution *models.Execution) {
	if c.Status != nil {
		execution.Status = *c.Status
	}

	if c.CompletedAt != nil {
		execution.CompletedAt = c.CompletedAt
	}

	if c.DurationSeconds != nil {
		execution.DurationSeconds = *c.DurationSeconds
	}

	if c.OutputPayload != nil {
		execution.OutputPayload = c.OutputPayload
	}

	if c.ErrorMessage != nil {
		execution.ErrorMessage = *c.ErrorMessage
	}

	if c.ExternalExecutionID != nil {
		execution.ExternalExecutionID = *c.ExternalExecutionID
	}
}

// ExecutionRepository is the durable table of execution records, the single
// source of truth for execution status. Implementations must support
// concurrent inserts and per-id updates without a global lock; per-row
// atomicity of the backing store is the only serialization boundary.
type ExecutionRepository interface {
	Insert(ctx context.Context, execution *models.Execution) error
	Update(ctx context.Context, id string, changes Changes) (*models.Execution, error)
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	ListRecent(ctx context.Context, filter Filter, limit int) ([]*models.Execution, error)
	CountRunning(ctx context.Context, workflowID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// WorkflowRepository is the read interface to the workflow registry plus the
// minimal write surface needed to register workflows and stamp executions.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Touch(ctx context.Context, id string, lastExecutedAt time.Time) error
}

// Persistence bundles the repositories behind one backend handle.
type Persistence interface {
	Executions() ExecutionRepository
	Workflows() WorkflowRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
