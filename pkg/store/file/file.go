// Package file provides file-based storage for workflows and execution records.
// It is the development and test backend; production deployments use the
// postgresql or redis backends.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowrelay/flowrelay/pkg/store"
)

// Persistence implements the store.Persistence interface using the file system.
type Persistence struct {
	root          string
	executionRepo *ExecutionRepository
	workflowRepo  *WorkflowRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		executionRepo: NewExecutionRepository(cleanRoot),
		workflowRepo:  NewWorkflowRepository(cleanRoot),
	}
}

// Executions returns the execution repository implementation for file persistence.
func (fp *Persistence) Executions() store.ExecutionRepository {
	return fp.executionRepo
}

// Workflows returns the workflow repository implementation for file persistence.
func (fp *Persistence) Workflows() store.WorkflowRepository {
	return fp.workflowRepo
}

// HealthCheck checks the file store is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
