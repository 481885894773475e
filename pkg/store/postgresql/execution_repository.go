package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, workflow_id, status, started_at, completed_at, duration_seconds,
	input_payload, output_payload, error_message, triggered_by, trigger_source,
	external_execution_id
`

// Insert writes a new execution record.
func (er *ExecutionRepository) Insert(ctx context.Context, execution *models.Execution) error {
	inputJSON, err := json.Marshal(execution.InputPayload)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("failed to marshal input payload: %w", err))
	}

	outputJSON, err := json.Marshal(execution.OutputPayload)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("failed to marshal output payload: %w", err))
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = er.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationSeconds,
		inputJSON,
		outputJSON,
		execution.ErrorMessage,
		execution.TriggeredBy,
		execution.TriggerSource,
		execution.ExternalExecutionID,
	)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err))
	}

	return nil
}

// Update applies a partial change set to an existing execution and returns the
// updated record. The status guard in the WHERE clause keeps transitions
// forward-only without an explicit row lock.
func (er *ExecutionRepository) Update(ctx context.Context, id string, changes store.Changes) (*models.Execution, error) {
	setClauses := make([]string, 0, 6)
	args := make([]any, 0, 7)

	addSet := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if changes.Status != nil {
		addSet("status", *changes.Status)
	}

	if changes.CompletedAt != nil {
		addSet("completed_at", *changes.CompletedAt)
	}

	if changes.DurationSeconds != nil {
		addSet("duration_seconds", *changes.DurationSeconds)
	}

	if changes.OutputPayload != nil {
		outputJSON, err := json.Marshal(changes.OutputPayload)
		if err != nil {
			return nil, store.NewExecutionError("Update", id, fmt.Errorf("failed to marshal output payload: %w", err))
		}

		addSet("output_payload", outputJSON)
	}

	if changes.ErrorMessage != nil {
		addSet("error_message", *changes.ErrorMessage)
	}

	if changes.ExternalExecutionID != nil {
		addSet("external_execution_id", *changes.ExternalExecutionID)
	}

	if len(setClauses) == 0 {
		return er.GetByID(ctx, id)
	}

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE executions SET %s
		WHERE id = $%d AND status IN ('pending', 'running')
		RETURNING `+executionColumns,
		strings.Join(setClauses, ", "), len(args))

	row := er.db.QueryRowContext(ctx, query, args...)

	execution, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the record is missing or it already reached a terminal
			// status; distinguish for the caller.
			existing, getErr := er.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}

			return nil, store.NewExecutionError("Update", id,
				fmt.Errorf("%w: record is %s", store.ErrInvalidTransition, existing.Status))
		}

		return nil, store.NewExecutionError("Update", id, err)
	}

	return execution, nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	row := er.db.QueryRowContext(ctx, query, id)

	execution, err := er.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewExecutionError("GetByID", id, store.ErrExecutionNotFound)
		}

		return nil, store.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// ListRecent returns up to limit executions matching the filter, ordered by
// started_at descending.
func (er *ExecutionRepository) ListRecent(ctx context.Context, filter store.Filter, limit int) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	args := make([]any, 0, 2)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += fmt.Sprintf(" WHERE workflow_id = $%d", len(args))
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := er.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

// CountRunning returns the number of non-terminal executions for a workflow.
func (er *ExecutionRepository) CountRunning(ctx context.Context, workflowID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM executions
		WHERE workflow_id = $1 AND status IN ('pending', 'running')
	`

	var count int

	err := er.db.QueryRowContext(ctx, query, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running executions: %w", err)
	}

	return count, nil
}

// Delete removes an execution record.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	result, err := er.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return store.NewExecutionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewExecutionError("Delete", id, err)
	}

	if affected == 0 {
		return store.NewExecutionError("Delete", id, store.ErrExecutionNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (er *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		inputJSON  []byte
		outputJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationSeconds,
		&inputJSON,
		&outputJSON,
		&execution.ErrorMessage,
		&execution.TriggeredBy,
		&execution.TriggerSource,
		&execution.ExternalExecutionID,
	)
	if err != nil {
		return nil, err
	}

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &execution.InputPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input payload: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &execution.OutputPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output payload: %w", err)
		}
	}

	return &execution, nil
}
