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

	"github.com/tombee/flightdeck/internal/model"
)

const (
	legacyTriggerEndpoint = "api/experimental/dags/%s/dag_runs"
	legacyRunEndpoint     = "api/experimental/dags/%s/dag_runs/%s"
)

// LegacyService speaks the engine's experimental API. Runs are addressed by
// formatted execution date and the trigger body carries the run identifier
// under "run_id".
type LegacyService struct {
	client Client
	logger *slog.Logger
}

var _ Service = (*LegacyService)(nil)

// NewLegacyService creates the experimental-protocol engine service.
func NewLegacyService(client Client, logger *slog.Logger) *LegacyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyService{client: client, logger: logger}
}

func (s *LegacyService) Trigger(ctx context.Context, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error) {
	s.logger.Info("triggering workflow run", slog.String("dag_name", rq.DagName))
	return triggerWorkflow(ctx, s.client, (*legacyProtocol)(nil), rq, payload)
}

func (s *LegacyService) Status(ctx context.Context, rq model.EngineRequest) (model.Status, error) {
	s.logger.Info("getting workflow run status",
		slog.String("dag_name", rq.DagName),
		slog.String("run_id", rq.RunID))
	return runStatus(ctx, s.client, (*legacyProtocol)(nil), rq)
}

// Version is not exposed by the experimental API.
func (s *LegacyService) Version(ctx context.Context) string {
	return VersionNotAvailable
}

func (s *LegacyService) CreateWorkflow(ctx context.Context, rq model.EngineRequest, registrationInstructions map[string]any) error {
	return nil
}

func (s *LegacyService) DeleteWorkflow(ctx context.Context, rq model.EngineRequest) error {
	return nil
}

func (s *LegacyService) SaveCustomOperator(ctx context.Context, definition, fileName string) error {
	return nil
}

// legacyProtocol is stateless; a nil pointer satisfies the interface.
type legacyProtocol struct{}

func (*legacyProtocol) triggerEndpoint(rq model.EngineRequest) string {
	return fmt.Sprintf(legacyTriggerEndpoint, rq.DagName)
}

func (*legacyProtocol) triggerBody(rq model.EngineRequest, payload map[string]any) ([]byte, error) {
	body := map[string]any{
		"run_id":         rq.RunID,
		"conf":           payload,
		"execution_date": ExecutionDate(rq.ExecutionTimeStamp),
	}
	return json.Marshal(body)
}

func (*legacyProtocol) parseTriggerResponse(resp *Response) (*model.TriggerResponse, error) {
	var parsed model.TriggerResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &parsed, nil
}

// statusEndpoint prefers the execution date echoed back at trigger time; the
// engine's clock may disagree with the submission timestamp.
func (*legacyProtocol) statusEndpoint(rq model.EngineRequest) string {
	date := rq.ExecutionDate
	if date == "" {
		date = ExecutionDate(rq.ExecutionTimeStamp)
	}
	return fmt.Sprintf(legacyRunEndpoint, rq.DagName, date)
}
