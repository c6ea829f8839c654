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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tombee/flightdeck/internal/model"
)

// VersionNotAvailable is reported when an engine's version cannot be
// determined. Version reporting is diagnostic and must never fail a caller.
const VersionNotAvailable = "N/A"

// executionDateLayout renders engine timestamps wherever a protocol wants a
// human-readable date in a URL or payload.
const executionDateLayout = "2006-01-02T15:04:05"

// Service is the engine-facing contract, implemented once per protocol
// variant. All operations are bounded by the caller's context.
type Service interface {
	// Trigger starts a DAG run carrying the opaque payload and returns the
	// execution date and run identifier echoed back by the engine.
	Trigger(ctx context.Context, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error)

	// Status fetches the current state of a DAG run.
	Status(ctx context.Context, rq model.EngineRequest) (model.Status, error)

	// Version reports the engine's version, best-effort: any transport or
	// parse failure degrades to VersionNotAvailable.
	Version(ctx context.Context) string

	// CreateWorkflow provisions a workflow definition on the engine.
	// No-op for the default implementations; provisioning is deployment
	// specific.
	CreateWorkflow(ctx context.Context, rq model.EngineRequest, registrationInstructions map[string]any) error

	// DeleteWorkflow removes a workflow definition from the engine.
	// No-op for the default implementations.
	DeleteWorkflow(ctx context.Context, rq model.EngineRequest) error

	// SaveCustomOperator registers a custom operator definition file.
	// No-op for the default implementations.
	SaveCustomOperator(ctx context.Context, definition, fileName string) error
}

// ExecutionDate renders an epoch-milliseconds timestamp as a UTC engine
// execution date.
func ExecutionDate(epochMillis int64) string {
	return time.UnixMilli(epochMillis).UTC().Format(executionDateLayout)
}

// protocol supplies the variant-specific pieces of a trigger or status call.
// The shared orchestration lives in triggerWorkflow and runStatus.
type protocol interface {
	triggerEndpoint(rq model.EngineRequest) string
	triggerBody(rq model.EngineRequest, payload map[string]any) ([]byte, error)
	parseTriggerResponse(resp *Response) (*model.TriggerResponse, error)
	statusEndpoint(rq model.EngineRequest) string
}

// triggerWorkflow POSTs a protocol-specific trigger body and parses the
// engine's reply.
func triggerWorkflow(ctx context.Context, client Client, p protocol, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error) {
	body, err := p.triggerBody(rq, payload)
	if err != nil {
		return nil, err
	}
	errMsg := fmt.Sprintf("failed to trigger workflow with id %s and name %s", rq.WorkflowID, rq.WorkflowName)
	resp, err := client.Call(ctx, http.MethodPost, p.triggerEndpoint(rq), body, errMsg)
	if err != nil {
		return nil, err
	}
	return p.parseTriggerResponse(resp)
}

// runStatus GETs the protocol-specific run resource and parses its state.
func runStatus(ctx context.Context, client Client, p protocol, rq model.EngineRequest) (model.Status, error) {
	errMsg := fmt.Sprintf("no workflow run executed for workflow %s on %s", rq.WorkflowName, ExecutionDate(rq.ExecutionTimeStamp))
	resp, err := client.Call(ctx, http.MethodGet, p.statusEndpoint(rq), nil, errMsg)
	if err != nil {
		return "", err
	}
	return parseRunState(resp.Body)
}

// parseRunState maps a {"state": "..."} body onto the status enum. Unknown
// fields are ignored for forward compatibility; a missing or invalid state
// is a hard parse error.
func parseRunState(body []byte) (model.Status, error) {
	var parsed struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.State == "" {
		return "", fmt.Errorf("%w: missing state field", ErrMalformedResponse)
	}
	status, err := model.ParseStatus(parsed.State)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return status, nil
}
