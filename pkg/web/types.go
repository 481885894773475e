package web

// ExecuteRequest is the body of an execute call. The caller's identity is
// resolved upstream before this endpoint is reached; it arrives here as plain
// provenance metadata.
type ExecuteRequest struct {
	Payload       map[string]any `json:"payload"`
	TriggeredBy   string         `json:"triggered_by"   validate:"omitempty,max=255"`
	TriggerSource string         `json:"trigger_source" validate:"omitempty,max=64"`
}

// ListExecutionsRequest carries the query parameters of an executions listing.
type ListExecutionsRequest struct {
	WorkflowID string `validate:"omitempty,max=255"`
	Limit      int    `validate:"min=1,max=100"`
}
