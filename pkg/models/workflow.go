// Package models defines the core domain models for webhook-driven workflow execution.
package models

import "time"

// Workflow is the read-mostly registry record describing one externally hosted
// automation. The orchestrator consumes it to resolve the webhook endpoint and
// the enabled flag; the automation's steps live entirely in the external engine.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	// WebhookURL is the endpoint of the external automation engine. An
	// execution may only be created for a workflow whose WebhookURL is
	// non-empty.
	WebhookURL string `json:"webhook_url" validate:"omitempty,url"`

	// InputSchema optionally declares the expected shape of the trigger
	// payload as a JSON schema document. When set, payloads are validated
	// before an execution record is created.
	InputSchema map[string]any `json:"input_schema,omitempty"`

	RunningCount   int        `json:"running_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Executable reports whether an execution may be triggered for this workflow.
func (w *Workflow) Executable() bool {
	return w.Enabled && w.WebhookURL != ""
}
