// Package orchestrator owns the execution state machine. It creates the
// execution record, invokes the trigger client, and writes every state
// transition back through the publishing store so observers see pending,
// running, and the terminal status as distinct writes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/otelhelper"
	"github.com/flowrelay/flowrelay/pkg/store"
	"github.com/flowrelay/flowrelay/pkg/trigger"
)

// ErrPreconditionFailed indicates the workflow cannot be executed: it is
// missing, disabled, has no webhook endpoint, or the payload failed its input
// schema. Surfaced before any execution record is created.
var ErrPreconditionFailed = errors.New("precondition failed")

// Result is what every Execute call yields once a record exists: the final
// record plus a success flag. Trigger failures live on the record, not in an
// error value.
type Result struct {
	Execution *models.Execution `json:"execution"`
	Success   bool              `json:"success"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer injects the tracer used to span executions.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// Orchestrator triggers workflows and records their lifecycle. All
// collaborators are injected; Execute is safe for concurrent use because each
// record is mutated only by the invocation that created it.
type Orchestrator struct {
	workflows  store.WorkflowRepository
	executions store.ExecutionRepository
	client     *trigger.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates an orchestrator. The executions repository should be a
// publishing repository so every write reaches the change feed.
func New(
	workflows store.WorkflowRepository,
	executions store.ExecutionRepository,
	client *trigger.Client,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	orchestrator := &Orchestrator{
		workflows:  workflows,
		executions: executions,
		client:     client,
		logger:     logger.With("module", "orchestrator"),
		tracer:     noop.NewTracerProvider().Tracer("orchestrator"),
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	return orchestrator
}

// Execute triggers one workflow run.
//
// Failure semantics: precondition violations and a failed initial insert are
// the only hard errors. Once the pending record exists, every downstream
// failure is recorded on the record as a failed terminal status and the caller
// still receives a well-formed Result.
func (o *Orchestrator) Execute(
	ctx context.Context,
	workflowID string,
	input map[string]any,
	prov models.Provenance,
) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	workflow, err := o.resolveWorkflow(ctx, workflowID, input)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	execution := &models.Execution{
		ID:            uuid.NewString(),
		WorkflowID:    workflow.ID,
		Status:        models.ExecutionStatusPending,
		StartedAt:     time.Now().UTC(),
		InputPayload:  input,
		TriggeredBy:   prov.TriggeredBy,
		TriggerSource: prov.TriggerSource,
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	err = o.executions.Insert(ctx, execution)
	if err != nil {
		// No record exists to carry the failure, so this is the one
		// post-resolution hard error.
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	o.logger.InfoContext(ctx, "Execution created",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"triggered_by", prov.TriggeredBy,
	)

	execution = o.transition(ctx, execution, store.Changes{Status: statusPtr(models.ExecutionStatusRunning)})

	outcome := o.client.Invoke(ctx, workflow.WebhookURL, input)

	execution = o.complete(ctx, execution, outcome)
	o.touchWorkflow(ctx, workflow.ID)

	if !outcome.OK {
		otelhelper.SetError(span, errors.New(outcome.Reason),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		)
	}

	return &Result{Execution: execution, Success: outcome.OK}, nil
}

// resolveWorkflow loads the workflow and checks every precondition before any
// record is created.
func (o *Orchestrator) resolveWorkflow(ctx context.Context, workflowID string, input map[string]any) (*models.Workflow, error) {
	workflow, err := o.workflows.GetByID(ctx, workflowID)
	if err != nil {
		if store.IsWorkflowNotFound(err) {
			return nil, fmt.Errorf("%w: workflow %s not found", ErrPreconditionFailed, workflowID)
		}

		return nil, fmt.Errorf("failed to resolve workflow %s: %w", workflowID, err)
	}

	if !workflow.Enabled {
		return nil, fmt.Errorf("%w: workflow %s is disabled", ErrPreconditionFailed, workflowID)
	}

	if workflow.WebhookURL == "" {
		return nil, fmt.Errorf("%w: workflow %s has no webhook endpoint", ErrPreconditionFailed, workflowID)
	}

	if workflow.InputSchema != nil {
		err = validateInput(workflow.InputSchema, input)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
		}
	}

	return workflow, nil
}

// complete writes the terminal transition derived from the trigger outcome.
func (o *Orchestrator) complete(ctx context.Context, execution *models.Execution, outcome trigger.Outcome) *models.Execution {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(execution.StartedAt).Seconds()

	changes := store.Changes{
		CompletedAt:     &completedAt,
		DurationSeconds: &duration,
	}

	if outcome.OK {
		changes.Status = statusPtr(models.ExecutionStatusSuccess)
		changes.OutputPayload = outcome.Output

		if outcome.ExternalID != "" {
			changes.ExternalExecutionID = &outcome.ExternalID
		}
	} else {
		changes.Status = statusPtr(models.ExecutionStatusFailed)
		changes.ErrorMessage = &outcome.Reason
	}

	return o.transition(ctx, execution, changes)
}

// transition applies a state change through the store. If the store rejects
// the write the change is still applied to the in-memory record so the caller
// gets a coherent view; the divergence is logged, never thrown.
func (o *Orchestrator) transition(ctx context.Context, execution *models.Execution, changes store.Changes) *models.Execution {
	updated, err := o.executions.Update(ctx, execution.ID, changes)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist execution transition",
			"execution_id", execution.ID,
			"error", err,
		)

		changes.Apply(execution)

		return execution
	}

	return updated
}

// touchWorkflow records last-executed time on the workflow, best effort.
func (o *Orchestrator) touchWorkflow(ctx context.Context, workflowID string) {
	err := o.workflows.Touch(ctx, workflowID, time.Now().UTC())
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to update workflow last execution time",
			"workflow_id", workflowID,
			"error", err,
		)
	}
}

func validateInput(schema map[string]any, input map[string]any) error {
	if input == nil {
		input = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("input schema validation failed: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("input payload does not match workflow schema: %v", messages)
	}

	return nil
}

func statusPtr(status models.ExecutionStatus) *models.ExecutionStatus {
	return &status
}

// IsPreconditionFailed checks if an error indicates an execute precondition violation.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}
