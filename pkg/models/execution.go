package models

import "time"

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending" // Record created, trigger not yet sent
	ExecutionStatusRunning ExecutionStatus = "running" // Webhook call in flight
	ExecutionStatusSuccess ExecutionStatus = "success" // Engine returned a success response
	ExecutionStatusFailed  ExecutionStatus = "failed"  // Engine returned an error or the call failed
)

// IsTerminal reports whether no further transition may occur from this status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// CanTransitionTo reports whether the status progression s -> next is legal.
// Progression is strictly forward: pending -> running -> success|failed.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next.IsTerminal()
	case ExecutionStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Provenance describes who or what triggered an execution.
type Provenance struct {
	TriggeredBy   string `json:"triggered_by"`
	TriggerSource string `json:"trigger_source"`
}

// Execution tracks one invocation attempt of a workflow against the external
// automation engine. It is created by the orchestrator at trigger time and
// mutated only by the orchestrator invocation that created it.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id" validate:"required"`
	Status     ExecutionStatus `json:"status"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`

	InputPayload  map[string]any `json:"input_payload,omitempty"`
	OutputPayload map[string]any `json:"output_payload,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`

	TriggeredBy   string `json:"triggered_by,omitempty"`
	TriggerSource string `json:"trigger_source,omitempty"`

	// ExternalExecutionID is the correlation id assigned by the external
	// engine, when its response carries one.
	ExternalExecutionID string `json:"external_execution_id,omitempty"`
}

// Finished reports whether the execution reached a terminal status.
func (e *Execution) Finished() bool {
	return e.Status.IsTerminal()
}

// Clone returns a deep copy of the execution. Payload maps are copied one
// level deep, which is enough to keep store snapshots independent of caller
// mutation.
func (e *Execution) Clone() *Execution {
	clone := *e

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		clone.CompletedAt = &completedAt
	}

	clone.InputPayload = cloneMap(e.InputPayload)
	clone.OutputPayload = cloneMap(e.OutputPayload)

	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
