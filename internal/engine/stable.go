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
	"log/slog"
	"net/http"

	"github.com/tombee/flightdeck/internal/auth"
	"github.com/tombee/flightdeck/internal/model"
)

const (
	stableTriggerEndpoint = "api/v1/dags/%s/dagRuns"
	stableRunEndpoint     = "api/v1/dags/%s/dagRuns/%s"
	stableVersionEndpoint = "api/v1/version"

	// keyExecutionContext is the payload field holding the caller-supplied
	// execution context.
	keyExecutionContext = "execution_context"

	// keyUserID is reserved in the execution context: the engine must never
	// receive a caller-supplied identity claim it did not originate. The
	// authenticated caller's identity is injected under this key at trigger
	// time.
	keyUserID = "userId"
)

// StableService speaks the engine's stable v1 API. Runs are addressed by run
// identifier and the trigger body carries it under "dag_run_id".
type StableService struct {
	client Client
	logger *slog.Logger
}

var _ Service = (*StableService)(nil)

// NewStableService creates the stable-protocol engine service.
func NewStableService(client Client, logger *slog.Logger) *StableService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StableService{client: client, logger: logger}
}

// Trigger rejects payloads whose execution context already carries the
// reserved userId key, injects the authenticated caller's identity under it,
// and submits the run. The reserved-key check happens before any network
// call.
func (s *StableService) Trigger(ctx context.Context, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error) {
	payload, err := injectUserID(ctx, rq, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Info("triggering workflow run", slog.String("dag_name", rq.DagName))
	return triggerWorkflow(ctx, s.client, (*stableProtocol)(nil), rq, payload)
}

func (s *StableService) Status(ctx context.Context, rq model.EngineRequest) (model.Status, error) {
	s.logger.Info("getting workflow run status",
		slog.String("dag_name", rq.DagName),
		slog.String("run_id", rq.RunID))
	return runStatus(ctx, s.client, (*stableProtocol)(nil), rq)
}

// Version queries the engine's version endpoint. Any failure degrades to
// VersionNotAvailable; version reporting must never fail a caller.
func (s *StableService) Version(ctx context.Context) string {
	resp, err := s.client.Call(ctx, http.MethodGet, stableVersionEndpoint, nil, "failed to get engine version")
	if err != nil {
		s.logger.Warn("unable to get engine version", slog.Any("error", err))
		return VersionNotAvailable
	}
	var parsed struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.Version == "" {
		s.logger.Warn("unable to locate version in engine response")
		return VersionNotAvailable
	}
	return parsed.Version
}

func (s *StableService) CreateWorkflow(ctx context.Context, rq model.EngineRequest, registrationInstructions map[string]any) error {
	return nil
}

func (s *StableService) DeleteWorkflow(ctx context.Context, rq model.EngineRequest) error {
	return nil
}

func (s *StableService) SaveCustomOperator(ctx context.Context, definition, fileName string) error {
	return nil
}

// injectUserID copies the payload, validates its execution context, and adds
// the caller identity from the request context. The caller's maps are never
// mutated.
func injectUserID(ctx context.Context, rq model.EngineRequest, payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: trigger payload is empty", ErrInvalidArgument)
	}
	execCtx, ok := payload[keyExecutionContext].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: execution context is missing", ErrInvalidArgument)
	}
	if _, present := execCtx[keyUserID]; present {
		return nil, fmt.Errorf(
			"%w: request to trigger workflow with name %s failed because execution context contains reserved key %q",
			ErrInvalidArgument, rq.WorkflowName, keyUserID)
	}

	var userID string
	if user, ok := auth.UserFromContext(ctx); ok {
		userID = user.ID
	}

	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	copiedCtx := make(map[string]any, len(execCtx)+1)
	for k, v := range execCtx {
		copiedCtx[k] = v
	}
	copiedCtx[keyUserID] = userID
	copied[keyExecutionContext] = copiedCtx
	return copied, nil
}

// stableProtocol is stateless; a nil pointer satisfies the interface.
type stableProtocol struct{}

func (*stableProtocol) triggerEndpoint(rq model.EngineRequest) string {
	return fmt.Sprintf(stableTriggerEndpoint, rq.DagName)
}

func (*stableProtocol) triggerBody(rq model.EngineRequest, payload map[string]any) ([]byte, error) {
	body := map[string]any{
		"dag_run_id": rq.RunID,
		"conf":       payload,
	}
	return json.Marshal(body)
}

func (*stableProtocol) parseTriggerResponse(resp *Response) (*model.TriggerResponse, error) {
	var parsed struct {
		ExecutionDate string `json:"execution_date"`
		DagRunID      string `json:"dag_run_id"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &model.TriggerResponse{
		ExecutionDate: parsed.ExecutionDate,
		RunID:         parsed.DagRunID,
	}, nil
}

func (*stableProtocol) statusEndpoint(rq model.EngineRequest) string {
	return fmt.Sprintf(stableRunEndpoint, rq.DagName, rq.RunID)
}
