package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStatusIsTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.True(t, ExecutionStatusSuccess.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
}

func TestExecutionStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    ExecutionStatus
		to      ExecutionStatus
		allowed bool
	}{
		{"pending to running", ExecutionStatusPending, ExecutionStatusRunning, true},
		{"pending to success", ExecutionStatusPending, ExecutionStatusSuccess, true},
		{"pending to failed", ExecutionStatusPending, ExecutionStatusFailed, true},
		{"running to success", ExecutionStatusRunning, ExecutionStatusSuccess, true},
		{"running to failed", ExecutionStatusRunning, ExecutionStatusFailed, true},
		{"running to pending", ExecutionStatusRunning, ExecutionStatusPending, false},
		{"success to running", ExecutionStatusSuccess, ExecutionStatusRunning, false},
		{"success to failed", ExecutionStatusSuccess, ExecutionStatusFailed, false},
		{"failed to success", ExecutionStatusFailed, ExecutionStatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWorkflowExecutable(t *testing.T) {
	workflow := &Workflow{ID: "wf-1", Name: "Send newsletter", Enabled: true, WebhookURL: "https://engine.example.com/hooks/1"}
	assert.True(t, workflow.Executable())

	disabled := &Workflow{ID: "wf-2", Name: "Sync CRM", Enabled: false, WebhookURL: "https://engine.example.com/hooks/2"}
	assert.False(t, disabled.Executable())

	noEndpoint := &Workflow{ID: "wf-3", Name: "Orphan", Enabled: true}
	assert.False(t, noEndpoint.Executable())
}

func TestExecutionClone(t *testing.T) {
	completedAt := time.Now().UTC()
	execution := &Execution{
		ID:            "ex-1",
		WorkflowID:    "wf-1",
		Status:        ExecutionStatusSuccess,
		StartedAt:     completedAt.Add(-2 * time.Second),
		CompletedAt:   &completedAt,
		InputPayload:  map[string]any{"email": "user@example.com"},
		OutputPayload: map[string]any{"ok": true},
	}

	clone := execution.Clone()
	require.Equal(t, execution, clone)

	clone.InputPayload["email"] = "other@example.com"
	clone.OutputPayload["ok"] = false
	*clone.CompletedAt = clone.CompletedAt.Add(time.Hour)

	assert.Equal(t, "user@example.com", execution.InputPayload["email"])
	assert.Equal(t, true, execution.OutputPayload["ok"])
	assert.Equal(t, completedAt, *execution.CompletedAt)
}
