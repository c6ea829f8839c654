// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/flightdeck/internal/engine"
	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/run"
	"github.com/tombee/flightdeck/internal/store/memory"
	"github.com/tombee/flightdeck/internal/workflow"
)

// testEngine is an engine.Service with canned answers.
type testEngine struct {
	status     model.Status
	triggerErr error
}

func (e *testEngine) Trigger(ctx context.Context, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error) {
	if e.triggerErr != nil {
		return nil, e.triggerErr
	}
	return &model.TriggerResponse{ExecutionDate: "2024-01-02T03:04:05", RunID: rq.RunID}, nil
}

func (e *testEngine) Status(ctx context.Context, rq model.EngineRequest) (model.Status, error) {
	if e.status == "" {
		return model.StatusRunning, nil
	}
	return e.status, nil
}

func (e *testEngine) Version(ctx context.Context) string { return "2.7.1" }
func (e *testEngine) CreateWorkflow(ctx context.Context, rq model.EngineRequest, registrationInstructions map[string]any) error {
	return nil
}
func (e *testEngine) DeleteWorkflow(ctx context.Context, rq model.EngineRequest) error { return nil }
func (e *testEngine) SaveCustomOperator(ctx context.Context, definition, fileName string) error {
	return nil
}

type testResolver struct {
	engine *testEngine
}

func (r *testResolver) Service(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Service, error) {
	return r.engine, nil
}

func (r *testResolver) Extension(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Extension, error) {
	return nil, fmt.Errorf("no extension in this test")
}

func (r *testResolver) ConnectedEngines(ctx context.Context) []model.EngineInfo {
	return []model.EngineInfo{{Name: "Internal Airflow", Version: "2.7.1"}}
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Backend, *testEngine) {
	t.Helper()
	backend := memory.New()
	eng := &testEngine{}
	resolver := &testResolver{engine: eng}

	runs := run.NewService(run.Config{
		Metadata: backend,
		Runs:     backend,
		Resolver: resolver,
	})
	workflows := workflow.NewManager(workflow.Config{
		Metadata: backend,
		Resolver: resolver,
		Runs:     runs,
	})

	server := NewServer(Config{
		Workflows: workflows,
		Runs:      runs,
		Engines:   resolver,
		Version:   "test",
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, backend, eng
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestWorkflowEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow",
		`{"workflowName": "ingest-csv", "description": "CSV ingestion"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ingest-csv", body["workflowName"])
	assert.NotEmpty(t, body["workflowId"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/workflow", `{"workflowName": "ingest-csv"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/ingest-csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ingest-csv", body["workflowName"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "workflow not found")

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/workflow/ingest-csv", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestListWorkflowsEmpty(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/workflow", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded []any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Empty(t, decoded, "an empty listing must be [], not null")
}

func TestRunEndpoints(t *testing.T) {
	ts, _, eng := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow", `{"workflowName": "ingest-csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow/ingest-csv/workflowRun",
		`{"runId": "run-1", "executionContext": {"input": "x"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-1", body["runId"])
	assert.Equal(t, "submitted", body["status"])

	// Duplicate run id is a conflict.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/workflow/ingest-csv/workflowRun", `{"runId": "run-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Reading the run reconciles against the engine.
	eng.status = model.StatusSuccess
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/ingest-csv/workflowRun/run-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.NotZero(t, body["endTimeStamp"])

	// Completed runs reject status updates.
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/v1/workflow/ingest-csv/workflowRun/run-1",
		`{"status": "running"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/ingest-csv/workflowRun/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateRunStatusValidation(t *testing.T) {
	ts, backend, _ := newTestServer(t)
	ctx := context.Background()

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow", `{"workflowName": "ingest-csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, backend.SaveRun(ctx, &model.WorkflowRun{
		RunID:        "run-1",
		WorkflowName: "ingest-csv",
		Status:       model.StatusSubmitted,
	}))

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/v1/workflow/ingest-csv/workflowRun/run-1",
		`{"status": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown workflow run status")

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/v1/workflow/ingest-csv/workflowRun/run-1",
		`{"status": "FAILED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", body["status"], "statuses parse case-insensitively and serialize lowercase")
}

func TestListRunsEndpoint(t *testing.T) {
	ts, backend, _ := newTestServer(t)
	ctx := context.Background()

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow", `{"workflowName": "ingest-csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for i := 0; i < 3; i++ {
		require.NoError(t, backend.SaveRun(ctx, &model.WorkflowRun{
			RunID:        fmt.Sprintf("run-%d", i),
			WorkflowName: "ingest-csv",
			Status:       model.StatusFinished,
		}))
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/ingest-csv/workflowRun?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 2)
	assert.NotEmpty(t, body["cursor"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/workflow/ingest-csv/workflowRun?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerEngineRejectionMapsToBadGateway(t *testing.T) {
	ts, _, eng := newTestServer(t)
	eng.triggerErr = &engine.CallError{
		Kind:       engine.RemoteRejected,
		StatusCode: http.StatusInternalServerError,
		Message:    "failed to trigger workflow with id wf-1 and name ingest-csv",
	}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow", `{"workflowName": "ingest-csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/workflow/ingest-csv/workflowRun", `{}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed to trigger workflow with id wf-1 and name ingest-csv", body["error"])
}

func TestInfoEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/info", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "flightdeckd", body["name"])
	engines, ok := body["connectedEngines"].([]any)
	require.True(t, ok)
	require.Len(t, engines, 1)
}

func TestHealthProbes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("correlation-id", "corr-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "corr-42", resp.Header.Get("correlation-id"))
}
