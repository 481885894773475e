package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	w.id, w.name, w.description, w.enabled, w.webhook_url, w.input_schema,
	w.last_executed_at, w.created_at, w.updated_at,
	(SELECT COUNT(*) FROM executions e
		WHERE e.workflow_id = w.id AND e.status IN ('pending', 'running'))
`

// GetByID returns a workflow by its ID, including its running execution count.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows w WHERE w.id = $1`

	row := wr.db.QueryRowContext(ctx, query, id)

	workflow, err := wr.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// List returns all workflows ordered by name.
func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows w ORDER BY w.name`

	rows, err := wr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := wr.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// Save creates or replaces a workflow record.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	schemaJSON, err := json.Marshal(workflow.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal input schema: %w", err)
	}

	query := `
		INSERT INTO workflows (
			id, name, description, enabled, webhook_url, input_schema,
			last_executed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			webhook_url = EXCLUDED.webhook_url,
			input_schema = EXCLUDED.input_schema,
			last_executed_at = EXCLUDED.last_executed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Enabled,
		workflow.WebhookURL,
		schemaJSON,
		workflow.LastExecutedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Touch records the time a workflow was last executed.
func (wr *WorkflowRepository) Touch(ctx context.Context, id string, lastExecutedAt time.Time) error {
	query := `
		UPDATE workflows SET last_executed_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := wr.db.ExecContext(ctx, query, id, lastExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to touch workflow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch workflow %s: %w", id, err)
	}

	if affected == 0 {
		return store.ErrWorkflowNotFound
	}

	return nil
}

func (wr *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow   models.Workflow
		schemaJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Enabled,
		&workflow.WebhookURL,
		&schemaJSON,
		&workflow.LastExecutedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.RunningCount,
	)
	if err != nil {
		return nil, err
	}

	if len(schemaJSON) > 0 {
		err = json.Unmarshal(schemaJSON, &workflow.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input schema: %w", err)
		}
	}

	return &workflow, nil
}
