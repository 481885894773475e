// Package trigger performs the webhook call against the external automation
// engine. The client is stateless and knows nothing about execution records;
// it normalizes the call's result or failure into a uniform Outcome.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single webhook call. There is no retry and no
	// application-level execution timeout beyond this transport bound.
	DefaultTimeout = 30 * time.Second

	// maxReasonBody caps how much of an error response body is carried into
	// the failure reason.
	maxReasonBody = 2048
)

// Outcome is the normalized result of one webhook invocation.
type Outcome struct {
	// OK is true when the call returned a 2xx status.
	OK bool

	// Output is the parsed JSON response body on success. A 2xx response
	// whose body is not valid JSON is wrapped as {"raw": <body>}.
	Output map[string]any

	// ExternalID is the correlation id the engine returned, when present.
	ExternalID string

	// Reason describes the failure: HTTP status and response body for a
	// non-2xx response, or the transport error text.
	Reason string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient injects the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client performs webhook calls against the external engine.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a trigger client.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     logger.With("module", "trigger"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Invoke performs a single HTTP POST of the payload as JSON to the endpoint.
// No retries. Any non-2xx status or transport failure is reported through the
// Outcome, never as an error value, so the orchestrator can record it on the
// execution.
func (c *Client) Invoke(ctx context.Context, endpointURL string, payload map[string]any) Outcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Invoking webhook", "url", endpointURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("webhook request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Reason: fmt.Sprintf("failed to read webhook response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{
			Reason: fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, truncate(respBody, maxReasonBody)),
		}
	}

	output := parseOutput(respBody)

	return Outcome{
		OK:         true,
		Output:     output,
		ExternalID: externalID(output),
	}
}

// parseOutput decodes a success body. The engine's contract is opaque, so a
// non-JSON or non-object body is preserved verbatim under "raw".
func parseOutput(body []byte) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}

	var output map[string]any
	if err := json.Unmarshal(body, &output); err != nil {
		return map[string]any{"raw": string(body)}
	}

	return output
}

// externalID pulls the engine's correlation id out of the response when it
// carries one under a conventional key.
func externalID(output map[string]any) string {
	for _, key := range []string{"executionId", "execution_id", "id"} {
		if value, ok := output[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}

	return string(body[:limit]) + "..."
}
