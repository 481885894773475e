package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrelay/flowrelay/pkg/channels/gochannel"
	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store/file"
)

func setupTestAPI(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	changeFeed := feed.NewWatermillFeed(pub, sub, slog.Default())
	t.Cleanup(func() {
		_ = changeFeed.Close()
	})

	api := NewAPI(slog.Default(), persistence, changeFeed, 5*time.Second)

	return api.App(), persistence
}

func saveTestWorkflow(t *testing.T, persistence *file.Persistence, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, persistence.Workflows().Save(t.Context(), workflow))
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()

	err := resp.Body.Close()
	if err != nil {
		t.Logf("Failed to close response body: %v", err)
	}
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Flowrelay API", string(body))
}

func TestAPI_Liveness(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
}

func TestAPI_GetWorkflows(t *testing.T) {
	app, persistence := setupTestAPI(t)

	saveTestWorkflow(t, persistence, &models.Workflow{ID: "wf-1", Name: "Send newsletter", Enabled: true})

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workflows []models.Workflow `json:"workflows"`
		Count     int               `json:"count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Workflows, 1)
	assert.Equal(t, "Send newsletter", payload.Workflows[0].Name)
}

func TestAPI_GetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ExecuteWorkflow(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "executionId": "engine-1"}`))
	}))
	defer engine.Close()

	app, persistence := setupTestAPI(t)
	saveTestWorkflow(t, persistence, &models.Workflow{
		ID:         "wf-1",
		Name:       "Send newsletter",
		Enabled:    true,
		WebhookURL: engine.URL,
	})

	body := strings.NewReader(`{"payload": {"email": "user@example.com"}, "triggered_by": "alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		Execution models.Execution `json:"execution"`
		Success   bool             `json:"success"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, models.ExecutionStatusSuccess, result.Execution.Status)
	assert.Equal(t, "engine-1", result.Execution.ExternalExecutionID)
	assert.Equal(t, "alice", result.Execution.TriggeredBy)
	assert.Equal(t, "api", result.Execution.TriggerSource)
}

func TestAPI_ExecuteWorkflow_Disabled(t *testing.T) {
	app, persistence := setupTestAPI(t)
	saveTestWorkflow(t, persistence, &models.Workflow{
		ID:         "wf-1",
		Name:       "Paused job",
		Enabled:    false,
		WebhookURL: "https://engine.example.com/hook",
	})

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestAPI_ExecuteWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/missing/execute", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestAPI_ExecuteWorkflow_InvalidBody(t *testing.T) {
	app, persistence := setupTestAPI(t)
	saveTestWorkflow(t, persistence, &models.Workflow{
		ID:         "wf-1",
		Name:       "Send newsletter",
		Enabled:    true,
		WebhookURL: "https://engine.example.com/hook",
	})

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetExecutions(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer engine.Close()

	app, persistence := setupTestAPI(t)
	saveTestWorkflow(t, persistence, &models.Workflow{
		ID:         "wf-1",
		Name:       "Send newsletter",
		Enabled:    true,
		WebhookURL: engine.URL,
	})

	execReq := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", nil)
	execResp, err := app.Test(execReq)
	require.NoError(t, err)
	closeBody(t, execResp)
	require.Equal(t, http.StatusAccepted, execResp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/executions?workflow_id=wf-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Executions []models.Execution `json:"executions"`
		Count      int                `json:"count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Executions, 1)
	assert.Equal(t, "wf-1", payload.Executions[0].WorkflowID)
	assert.True(t, payload.Executions[0].Status.IsTerminal())
}

func TestAPI_GetExecutions_InvalidLimit(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/executions?limit=0", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetExecution_NotFound(t *testing.T) {
	app, _ := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
