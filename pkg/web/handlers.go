// Package web provides the HTTP surface for triggering executions and reading
// execution history.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/orchestrator"
	"github.com/flowrelay/flowrelay/pkg/store"
)

const defaultListLimit = 20

// APIHandlers bundles the orchestrator and repositories behind the routes.
type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	executions   store.ExecutionRepository
	workflows    store.WorkflowRepository
	persistence  store.Persistence
	validator    *validator.Validate
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	executions store.ExecutionRepository,
	persistence store.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		executions:   executions,
		workflows:    persistence.Workflows(),
		persistence:  persistence,
		validator:    validate,
	}
}

// ExecuteWorkflow triggers one workflow run and returns the resulting record.
// The call blocks until the webhook resolves, so the record in the response is
// terminal unless the store rejected a transition.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.TriggerSource == "" {
		req.TriggerSource = "api"
	}

	result, err := h.orchestrator.Execute(c.Context(), workflowID, req.Payload, models.Provenance{
		TriggeredBy:   req.TriggeredBy,
		TriggerSource: req.TriggerSource,
	})
	if err != nil {
		return handleExecuteError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

// GetExecutions lists recent executions, optionally filtered to one workflow.
func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	req := ListExecutionsRequest{
		WorkflowID: c.Query("workflow_id"),
		Limit:      defaultListLimit,
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		req.Limit = limit
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executions, err := h.executions.ListRecent(c.Context(), store.Filter{WorkflowID: req.WorkflowID}, req.Limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

// GetExecution returns a single execution by id.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executions.GetByID(c.Context(), id)
	if err != nil {
		if store.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(execution)
}

// GetWorkflows lists the workflow registry.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// GetWorkflow returns a single workflow by id.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflows.GetByID(c.Context(), id)
	if err != nil {
		if store.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Flowrelay API is healthy"
	httpStatus := http.StatusOK

	storeCheck := "Execution store is healthy"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Flowrelay API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = "Execution store is unhealthy: " + err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
