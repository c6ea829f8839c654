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

package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/flightdeck/internal/auth"
	"github.com/tombee/flightdeck/internal/engine"
	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/run"
	"github.com/tombee/flightdeck/internal/store/memory"
)

// stubEngine is an engine.Service that records provisioning calls.
type stubEngine struct {
	created []string
	deleted []string

	// status is what reconciliation reports for any active run.
	status model.Status
}

func (s *stubEngine) Trigger(ctx context.Context, rq model.EngineRequest, payload map[string]any) (*model.TriggerResponse, error) {
	return &model.TriggerResponse{}, nil
}

func (s *stubEngine) Status(ctx context.Context, rq model.EngineRequest) (model.Status, error) {
	if s.status == "" {
		return model.StatusSuccess, nil
	}
	return s.status, nil
}

func (s *stubEngine) Version(ctx context.Context) string { return engine.VersionNotAvailable }

func (s *stubEngine) CreateWorkflow(ctx context.Context, rq model.EngineRequest, registrationInstructions map[string]any) error {
	s.created = append(s.created, rq.DagName)
	return nil
}

func (s *stubEngine) DeleteWorkflow(ctx context.Context, rq model.EngineRequest) error {
	s.deleted = append(s.deleted, rq.DagName)
	return nil
}

func (s *stubEngine) SaveCustomOperator(ctx context.Context, definition, fileName string) error {
	return nil
}

type stubResolver struct {
	engine *stubEngine
}

func (r *stubResolver) Service(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Service, error) {
	return r.engine, nil
}

func (r *stubResolver) Extension(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Extension, error) {
	return nil, nil
}

func newTestManager(t *testing.T) (*Manager, *memory.Backend, *stubEngine) {
	t.Helper()
	backend := memory.New()
	eng := &stubEngine{}
	resolver := &stubResolver{engine: eng}

	runs := run.NewService(run.Config{
		Metadata: backend,
		Runs:     backend,
		Resolver: resolver,
	})

	m := NewManager(Config{
		Metadata: backend,
		Resolver: resolver,
		Runs:     runs,
	})
	m.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	m.newWorkflowID = func() string { return "wf-1" }
	return m, backend, eng
}

func TestCreateWorkflow(t *testing.T) {
	m, backend, eng := newTestManager(t)
	ctx := auth.ContextWithUser(context.Background(), &auth.User{ID: "alice@example.com"})

	metadata, err := m.Create(ctx, CreateRequest{
		WorkflowName: "ingest-csv",
		Description:  "CSV ingestion",
		RegistrationInstructions: map[string]any{
			model.InstructionDagName: "csv_ingest_dag",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "wf-1", metadata.WorkflowID)
	assert.Equal(t, "alice@example.com", metadata.CreatedBy)
	assert.Equal(t, int64(1704164645000), metadata.CreationTimestamp)
	assert.Equal(t, 1, metadata.Version)
	assert.Equal(t, []string{"csv_ingest_dag"}, eng.created)

	stored, err := backend.GetWorkflow(ctx, "ingest-csv")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", stored.WorkflowID)
}

func TestCreateWorkflowConflict(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{WorkflowName: "ingest-csv"})
	require.NoError(t, err)

	_, err = m.Create(ctx, CreateRequest{WorkflowName: "ingest-csv"})
	require.ErrorIs(t, err, ErrWorkflowAlreadyExists)
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Create(context.Background(), CreateRequest{})
	require.ErrorIs(t, err, engine.ErrInvalidArgument)
}

func TestGetWorkflowNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestDeleteWorkflowPurgesRuns(t *testing.T) {
	m, backend, eng := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{WorkflowName: "ingest-csv"})
	require.NoError(t, err)
	require.NoError(t, backend.SaveRun(ctx, &model.WorkflowRun{
		RunID:        "run-1",
		WorkflowName: "ingest-csv",
		Status:       model.StatusFailed,
	}))

	require.NoError(t, m.Delete(ctx, "ingest-csv"))
	assert.Equal(t, []string{"ingest-csv"}, eng.deleted)

	_, err = m.Get(ctx, "ingest-csv")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	page, err := backend.ListRuns(ctx, "ingest-csv", 0, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestDeleteWorkflowRefusedWhileRunsActive(t *testing.T) {
	m, backend, eng := newTestManager(t)
	eng.status = model.StatusRunning
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{WorkflowName: "ingest-csv"})
	require.NoError(t, err)
	require.NoError(t, backend.SaveRun(ctx, &model.WorkflowRun{
		RunID:        "run-1",
		WorkflowName: "ingest-csv",
		Status:       model.StatusRunning,
	}))

	err = m.Delete(ctx, "ingest-csv")
	require.ErrorIs(t, err, run.ErrActiveRunsPresent)

	_, err = m.Get(ctx, "ingest-csv")
	require.NoError(t, err, "registration must survive a refused delete")
}
