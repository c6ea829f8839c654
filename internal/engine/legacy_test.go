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

package engine

import (
	"context"
	"net/http"
	"testing"

	"github.com/tombee/flightdeck/internal/model"
)

func TestLegacyTrigger(t *testing.T) {
	client := &fakeClient{response: &Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"execution_date": "2024-01-02T03:04:05", "run_id": "run-1"}`),
	}}
	svc := NewLegacyService(client, nil)

	rq := model.EngineRequest{
		RunID:              "run-1",
		WorkflowName:       "ingest",
		DagName:            "ingest_dag",
		ExecutionTimeStamp: 1704164645000,
	}
	resp, err := svc.Trigger(context.Background(), rq, map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if client.method != http.MethodPost {
		t.Errorf("method = %q", client.method)
	}
	if client.endpoint != "api/experimental/dags/ingest_dag/dag_runs" {
		t.Errorf("endpoint = %q", client.endpoint)
	}

	body := client.decodeBody(t)
	if body["run_id"] != "run-1" {
		t.Errorf("run_id = %v", body["run_id"])
	}
	if body["execution_date"] != "2024-01-02T03:04:05" {
		t.Errorf("execution_date = %v", body["execution_date"])
	}
	conf, ok := body["conf"].(map[string]any)
	if !ok || conf["key"] != "value" {
		t.Errorf("conf = %v", body["conf"])
	}

	if resp.RunID != "run-1" || resp.ExecutionDate != "2024-01-02T03:04:05" {
		t.Errorf("response = %+v", resp)
	}
}

func TestLegacyStatusAddressesRunByDate(t *testing.T) {
	client := &fakeClient{response: &Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"state": "running"}`),
	}}
	svc := NewLegacyService(client, nil)

	status, err := svc.Status(context.Background(), model.EngineRequest{
		DagName:            "ingest_dag",
		RunID:              "run-1",
		ExecutionTimeStamp: 1704164645000,
	})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != model.StatusRunning {
		t.Errorf("status = %q", status)
	}
	if client.endpoint != "api/experimental/dags/ingest_dag/dag_runs/2024-01-02T03:04:05" {
		t.Errorf("endpoint = %q", client.endpoint)
	}
}

// The execution date echoed back at trigger time wins over the submission
// timestamp when both are present.
func TestLegacyStatusPrefersEchoedExecutionDate(t *testing.T) {
	client := &fakeClient{response: &Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"state": "success"}`),
	}}
	svc := NewLegacyService(client, nil)

	_, err := svc.Status(context.Background(), model.EngineRequest{
		DagName:            "ingest_dag",
		ExecutionTimeStamp: 1704164645000,
		ExecutionDate:      "2024-01-02T03:04:09",
	})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if client.endpoint != "api/experimental/dags/ingest_dag/dag_runs/2024-01-02T03:04:09" {
		t.Errorf("endpoint = %q", client.endpoint)
	}
}

func TestLegacyVersionNotAvailable(t *testing.T) {
	client := &fakeClient{}
	svc := NewLegacyService(client, nil)

	if got := svc.Version(context.Background()); got != VersionNotAvailable {
		t.Errorf("Version = %q, want %q", got, VersionNotAvailable)
	}
	if client.calls != 0 {
		t.Error("version reporting made an engine call")
	}
}
