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
	"time"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

const workflowsDir = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	root string // File system root for storing workflows
	mu   sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) validateWorkflowID(workflowID string) error {
	if workflowID == "" {
		return errors.New("workflow ID cannot be empty")
	}

	if strings.Contains(workflowID, "..") || strings.Contains(workflowID, "/") || strings.Contains(workflowID, "\\") {
		return errors.New("workflow ID contains invalid characters")
	}

	return nil
}

func (wr *WorkflowRepository) workflowPath(workflowID string) string {
	return filepath.Join(wr.root, workflowsDir, workflowID+".json")
}

// GetByID returns a workflow by its ID.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	err := wr.validateWorkflowID(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(wr.workflowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// List returns all workflows sorted by name.
func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	root := os.DirFS(filepath.Join(wr.root, workflowsDir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflowID := file[:len(file)-5] // Remove .json extension

		workflow, err := wr.GetByID(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].Name < workflows[j].Name
	})

	return workflows, nil
}

// Save writes a workflow to the file system, creating or replacing it.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	err := wr.validateWorkflowID(workflow.ID)
	if err != nil {
		return err
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	dir := filepath.Join(wr.root, workflowsDir)

	err = os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	err = os.WriteFile(wr.workflowPath(workflow.ID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Touch records the time a workflow was last executed.
func (wr *WorkflowRepository) Touch(ctx context.Context, id string, lastExecutedAt time.Time) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	workflow.LastExecutedAt = &lastExecutedAt
	workflow.UpdatedAt = lastExecutedAt

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
	}

	err = os.WriteFile(wr.workflowPath(id), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", id, err)
	}

	return nil
}
