package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

const executionsDir = "executions"

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	root string // File system root for storing executions

	// mu serializes read-modify-write cycles so per-id updates stay atomic,
	// the guarantee a database backend gets from per-row atomicity.
	mu sync.Mutex
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// validateExecutionID validates that the execution ID is safe for file operations.
func (er *ExecutionRepository) validateExecutionID(executionID string) error {
	if executionID == "" {
		return errors.New("execution ID cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(executionID, "..") || strings.Contains(executionID, "/") || strings.Contains(executionID, "\\") {
		return errors.New("execution ID contains invalid characters")
	}

	return nil
}

func (er *ExecutionRepository) executionPath(executionID string) string {
	return filepath.Join(er.root, executionsDir, executionID+".json")
}

// Insert writes a new execution record. It fails if a record with the same ID
// already exists.
func (er *ExecutionRepository) Insert(ctx context.Context, execution *models.Execution) error {
	err := er.validateExecutionID(execution.ID)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	dir := filepath.Join(er.root, executionsDir)

	err = os.MkdirAll(dir, 0750)
	if err != nil {
		return store.NewExecutionError("Insert", execution.ID, fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err))
	}

	path := er.executionPath(execution.ID)
	if _, err := os.Stat(path); err == nil {
		return store.NewExecutionError("Insert", execution.ID, store.ErrExecutionAlreadyExists)
	}

	return er.write(execution)
}

// Update applies a partial change set to an existing execution and returns the
// updated record. Transitions out of a terminal status are rejected.
func (er *ExecutionRepository) Update(ctx context.Context, id string, changes store.Changes) (*models.Execution, error) {
	err := er.validateExecutionID(id)
	if err != nil {
		return nil, store.NewExecutionError("Update", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, store.NewExecutionError("Update", id, err)
	}

	if changes.Status != nil && !execution.Status.CanTransitionTo(*changes.Status) {
		return nil, store.NewExecutionError("Update", id,
			fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, execution.Status, *changes.Status))
	}

	changes.Apply(execution)

	err = er.write(execution)
	if err != nil {
		return nil, store.NewExecutionError("Update", id, err)
	}

	return execution, nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	err := er.validateExecutionID(id)
	if err != nil {
		return nil, store.NewExecutionError("GetByID", id, err)
	}

	execution, err := er.read(id)
	if err != nil {
		return nil, store.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// ListRecent returns up to limit executions matching the filter, ordered by
// started_at descending.
func (er *ExecutionRepository) ListRecent(ctx context.Context, filter store.Filter, limit int) ([]*models.Execution, error) {
	root := os.DirFS(filepath.Join(er.root, executionsDir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		executionID := file[:len(file)-5] // Remove .json extension

		execution, err := er.read(executionID)
		if err != nil {
			if errors.Is(err, store.ErrExecutionNotFound) {
				continue // Deleted between glob and read
			}

			return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
		}

		if filter.Matches(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// CountRunning returns the number of non-terminal executions for a workflow.
func (er *ExecutionRepository) CountRunning(ctx context.Context, workflowID string) (int, error) {
	executions, err := er.ListRecent(ctx, store.Filter{WorkflowID: workflowID}, 0)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, execution := range executions {
		if !execution.Finished() {
			count++
		}
	}

	return count, nil
}

// Delete removes an execution record. Deletion is an administrative action
// observed passively by the change feed; the orchestrator never deletes.
func (er *ExecutionRepository) Delete(ctx context.Context, id string) error {
	err := er.validateExecutionID(id)
	if err != nil {
		return store.NewExecutionError("Delete", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	err = os.Remove(er.executionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return store.NewExecutionError("Delete", id, store.ErrExecutionNotFound)
		}

		return store.NewExecutionError("Delete", id, err)
	}

	return nil
}

func (er *ExecutionRepository) read(id string) (*models.Execution, error) {
	data, err := os.ReadFile(er.executionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) write(execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	err = os.WriteFile(er.executionPath(execution.ID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}
