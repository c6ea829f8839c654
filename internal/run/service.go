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

// Package run implements the workflow run lifecycle: triggering runs on the
// engine, reading them back with lazy status reconciliation, status updates,
// and bulk deletion.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/flightdeck/internal/auth"
	"github.com/tombee/flightdeck/internal/engine"
	internallog "github.com/tombee/flightdeck/internal/log"
	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/store"
)

// deletePageSize bounds each page while collecting run ids for a bulk delete.
const deletePageSize = 100

// Trigger payload keys handed to the engine as the run configuration.
const (
	payloadRunID            = "run_id"
	payloadWorkflowName     = "workflow_name"
	payloadCorrelationID    = "correlation_id"
	payloadAuthToken        = "authToken"
	payloadExecutionContext = "execution_context"
)

// EngineResolver resolves a workflow registration to its engine deployment.
type EngineResolver interface {
	Service(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Service, error)
	Extension(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Extension, error)
}

// Config wires a run Service.
type Config struct {
	Metadata store.MetadataStore
	Runs     store.RunStore
	Resolver EngineResolver
	Logger   *slog.Logger
}

// Service owns the run lifecycle.
type Service struct {
	metadata store.MetadataStore
	runs     store.RunStore
	resolver EngineResolver
	logger   *slog.Logger

	// Overridable in tests.
	now      func() time.Time
	newRunID func() string
}

// NewService creates a run service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		metadata: cfg.Metadata,
		runs:     cfg.Runs,
		resolver: cfg.Resolver,
		logger:   internallog.WithComponent(logger, "run"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Trigger starts a new run of the workflow on its engine and records it as
// SUBMITTED. The engine is called before the record is persisted, so a crash
// in between leaves an orphan engine run; the engine remains the source of
// truth for its own state.
func (s *Service) Trigger(ctx context.Context, workflowName string, req model.TriggerRunRequest) (*model.WorkflowRun, error) {
	metadata, err := s.getWorkflow(ctx, workflowName)
	if err != nil {
		return nil, err
	}

	engineSvc, err := s.resolver.Service(ctx, metadata)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = s.newRunID()
	} else if _, err := s.runs.GetRun(ctx, workflowName, runID); err == nil {
		return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, ErrRunAlreadyExists)
	}

	now := s.now()
	startMillis := now.UnixMilli()
	rq := model.EngineRequest{
		RunID:              runID,
		WorkflowID:         metadata.WorkflowID,
		WorkflowName:       workflowName,
		DagName:            metadata.DagName(),
		ExecutionTimeStamp: startMillis,
		ExecutionDate:      engine.ExecutionDate(startMillis),
	}

	executionContext := req.ExecutionContext
	if executionContext == nil {
		executionContext = map[string]any{}
	}
	payload := map[string]any{
		payloadRunID:            runID,
		payloadWorkflowName:     workflowName,
		payloadExecutionContext: executionContext,
	}
	if correlationID, ok := internallog.CorrelationIDFromContext(ctx); ok {
		payload[payloadCorrelationID] = correlationID
	}
	if token, ok := auth.TokenFromContext(ctx); ok {
		payload[payloadAuthToken] = token
	}

	resp, err := engineSvc.Trigger(ctx, rq, payload)
	if err != nil {
		runsTriggered.WithLabelValues("error").Inc()
		return nil, err
	}

	var submittedBy string
	if user, ok := auth.UserFromContext(ctx); ok {
		submittedBy = user.ID
	}

	record := &model.WorkflowRun{
		RunID:               runID,
		WorkflowID:          metadata.WorkflowID,
		WorkflowName:        workflowName,
		Status:              model.StatusSubmitted,
		StartTimeStamp:      startMillis,
		SubmittedBy:         submittedBy,
		EngineExecutionDate: resp.ExecutionDate,
	}
	if err := s.runs.SaveRun(ctx, record); err != nil {
		// The engine run is already in flight and cannot be recalled here.
		s.logger.Warn("run triggered on engine but not persisted",
			slog.String(internallog.RunIDKey, runID),
			slog.String(internallog.WorkflowKey, workflowName),
			internallog.Error(err))
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, ErrRunAlreadyExists)
		}
		return nil, err
	}

	runsTriggered.WithLabelValues("ok").Inc()
	s.logger.Info("workflow run triggered",
		slog.String(internallog.RunIDKey, runID),
		slog.String(internallog.WorkflowKey, workflowName),
		slog.String(internallog.DagKey, rq.DagName))
	return record, nil
}

// GetRun returns the run, reconciling active runs against the engine first.
// A run the store considers active may long since have finished; the engine's
// answer is persisted before it is returned.
func (s *Service) GetRun(ctx context.Context, workflowName, runID string) (*model.WorkflowRun, error) {
	record, err := s.getRun(ctx, workflowName, runID)
	if err != nil {
		return nil, err
	}
	if !record.Status.Active() {
		return record, nil
	}
	return s.reconcile(ctx, record)
}

// ListRuns returns one page of the workflow's runs without reconciliation.
func (s *Service) ListRuns(ctx context.Context, workflowName string, opts model.ListRunsOptions) (*model.RunPage, error) {
	if _, err := s.getWorkflow(ctx, workflowName); err != nil {
		return nil, err
	}
	return s.runs.ListRuns(ctx, workflowName, opts.Limit, opts.Cursor)
}

// UpdateStatus overwrites the run's status. Terminal runs are immutable;
// moving into a terminal status stamps the end timestamp.
func (s *Service) UpdateStatus(ctx context.Context, workflowName, runID string, status model.Status) (*model.WorkflowRun, error) {
	record, err := s.getRun(ctx, workflowName, runID)
	if err != nil {
		return nil, err
	}
	if record.Status.Completed() {
		return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, ErrRunCompleted)
	}

	record.Status = status
	if status.Completed() {
		record.EndTimeStamp = s.now().UnixMilli()
	}
	if err := s.runs.UpdateRun(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("workflow run status updated",
		slog.String(internallog.RunIDKey, runID),
		slog.String(internallog.WorkflowKey, workflowName),
		slog.String(internallog.StatusKey, status.String()))
	return record, nil
}

// DeleteRuns removes every run of the workflow. Active runs are reconciled
// first; the delete is refused while any run remains active. Run ids are
// collected page by page and removed in one batch.
func (s *Service) DeleteRuns(ctx context.Context, workflowName string) error {
	if _, err := s.getWorkflow(ctx, workflowName); err != nil {
		return err
	}

	var runIDs []string
	cursor := ""
	for {
		page, err := s.runs.ListRuns(ctx, workflowName, deletePageSize, cursor)
		if err != nil {
			return err
		}
		for _, record := range page.Items {
			if record.Status.Active() {
				record, err = s.reconcile(ctx, record)
				if err != nil {
					return err
				}
			}
			if record.Status.Active() {
				return fmt.Errorf("workflow %s run %s is %s: %w",
					workflowName, record.RunID, record.Status, ErrActiveRunsPresent)
			}
			runIDs = append(runIDs, record.RunID)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	if len(runIDs) == 0 {
		return nil
	}
	if err := s.runs.DeleteRuns(ctx, workflowName, runIDs); err != nil {
		return err
	}

	runsDeleted.Add(float64(len(runIDs)))
	s.logger.Info("workflow runs deleted",
		slog.String(internallog.WorkflowKey, workflowName),
		slog.Int("count", len(runIDs)))
	return nil
}

// LatestTaskDetails returns the most recent task instance of the run merged
// with its XCom values, for engines whose protocol exposes them.
func (s *Service) LatestTaskDetails(ctx context.Context, workflowName, runID string) (map[string]any, error) {
	metadata, err := s.getWorkflow(ctx, workflowName)
	if err != nil {
		return nil, err
	}
	if _, err := s.getRun(ctx, workflowName, runID); err != nil {
		return nil, err
	}
	extension, err := s.resolver.Extension(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return extension.LatestTaskDetails(ctx, metadata.DagName(), runID)
}

// reconcile asks the engine for the run's current state and persists any
// change. The end timestamp is stamped only on the transition into a terminal
// status.
func (s *Service) reconcile(ctx context.Context, record *model.WorkflowRun) (*model.WorkflowRun, error) {
	metadata, err := s.getWorkflow(ctx, record.WorkflowName)
	if err != nil {
		return nil, err
	}
	engineSvc, err := s.resolver.Service(ctx, metadata)
	if err != nil {
		return nil, err
	}

	rq := model.EngineRequest{
		RunID:              record.RunID,
		WorkflowID:         record.WorkflowID,
		WorkflowName:       record.WorkflowName,
		DagName:            metadata.DagName(),
		ExecutionTimeStamp: record.StartTimeStamp,
		ExecutionDate:      record.EngineExecutionDate,
	}
	status, err := engineSvc.Status(ctx, rq)
	if err != nil {
		runsReconciled.WithLabelValues("error").Inc()
		return nil, err
	}

	if status == "" || status == record.Status {
		runsReconciled.WithLabelValues("unchanged").Inc()
		return record, nil
	}

	record.Status = status
	if status.Completed() {
		record.EndTimeStamp = s.now().UnixMilli()
	}
	if err := s.runs.UpdateRun(ctx, record); err != nil {
		return nil, err
	}

	runsReconciled.WithLabelValues("updated").Inc()
	s.logger.Info("workflow run status reconciled",
		slog.String(internallog.RunIDKey, record.RunID),
		slog.String(internallog.WorkflowKey, record.WorkflowName),
		slog.String(internallog.StatusKey, status.String()))
	return record, nil
}

func (s *Service) getWorkflow(ctx context.Context, workflowName string) (*model.WorkflowMetadata, error) {
	metadata, err := s.metadata.GetWorkflow(ctx, workflowName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowName, ErrWorkflowNotFound)
		}
		return nil, err
	}
	return metadata, nil
}

func (s *Service) getRun(ctx context.Context, workflowName, runID string) (*model.WorkflowRun, error) {
	record, err := s.runs.GetRun(ctx, workflowName, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, ErrRunNotFound)
		}
		return nil, err
	}
	return record, nil
}
