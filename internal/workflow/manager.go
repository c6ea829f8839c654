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

// Package workflow manages workflow registrations: the named definitions that
// runs are triggered against. Deleting a registration purges its runs first,
// which fails while any run is still active.
package workflow

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

var (
	// ErrWorkflowNotFound is returned when the named workflow is not
	// registered.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists is returned when a registration reuses an
	// existing workflow name.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")
)

// CreateRequest is a caller's request to register a workflow.
type CreateRequest struct {
	WorkflowName             string         `json:"workflowName"`
	Description              string         `json:"description,omitempty"`
	RegistrationInstructions map[string]any `json:"registrationInstructions,omitempty"`
}

// EngineResolver resolves a workflow registration to its engine deployment.
type EngineResolver interface {
	Service(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Service, error)
}

// RunPurger removes every run of a workflow, refusing while any is active.
type RunPurger interface {
	DeleteRuns(ctx context.Context, workflowName string) error
}

// Config wires a workflow Manager.
type Config struct {
	Metadata store.MetadataStore
	Resolver EngineResolver
	Runs     RunPurger
	Logger   *slog.Logger
}

// Manager owns the workflow registration lifecycle.
type Manager struct {
	metadata store.MetadataStore
	resolver EngineResolver
	runs     RunPurger
	logger   *slog.Logger

	// Overridable in tests.
	now           func() time.Time
	newWorkflowID func() string
}

// NewManager creates a workflow manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		metadata:      cfg.Metadata,
		resolver:      cfg.Resolver,
		runs:          cfg.Runs,
		logger:        internallog.WithComponent(logger, "workflow"),
		now:           time.Now,
		newWorkflowID: uuid.NewString,
	}
}

// Create registers a workflow and provisions it on its engine. The name is
// the registration key; reusing one is a conflict.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*model.WorkflowMetadata, error) {
	if req.WorkflowName == "" {
		return nil, fmt.Errorf("%w: workflow name is required", engine.ErrInvalidArgument)
	}

	var createdBy string
	if user, ok := auth.UserFromContext(ctx); ok {
		createdBy = user.ID
	}

	metadata := &model.WorkflowMetadata{
		WorkflowID:               m.newWorkflowID(),
		WorkflowName:             req.WorkflowName,
		Description:              req.Description,
		CreatedBy:                createdBy,
		CreationTimestamp:        m.now().UnixMilli(),
		Version:                  1,
		RegistrationInstructions: req.RegistrationInstructions,
	}

	engineSvc, err := m.resolver.Service(ctx, metadata)
	if err != nil {
		return nil, err
	}
	rq := model.EngineRequest{
		WorkflowID:   metadata.WorkflowID,
		WorkflowName: metadata.WorkflowName,
		DagName:      metadata.DagName(),
	}
	if err := engineSvc.CreateWorkflow(ctx, rq, req.RegistrationInstructions); err != nil {
		return nil, err
	}

	if err := m.metadata.CreateWorkflow(ctx, metadata); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("workflow %s: %w", req.WorkflowName, ErrWorkflowAlreadyExists)
		}
		return nil, err
	}

	m.logger.Info("workflow registered",
		slog.String(internallog.WorkflowKey, metadata.WorkflowName),
		slog.String(internallog.DagKey, metadata.DagName()))
	return metadata, nil
}

// Get retrieves a workflow registration by name.
func (m *Manager) Get(ctx context.Context, workflowName string) (*model.WorkflowMetadata, error) {
	metadata, err := m.metadata.GetWorkflow(ctx, workflowName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowName, ErrWorkflowNotFound)
		}
		return nil, err
	}
	return metadata, nil
}

// List returns registrations whose name starts with prefix; an empty prefix
// returns all.
func (m *Manager) List(ctx context.Context, prefix string) ([]*model.WorkflowMetadata, error) {
	return m.metadata.ListWorkflows(ctx, prefix)
}

// Delete removes a workflow registration. Its runs are purged first, so the
// delete is refused while any run is active, and the engine is told to drop
// the definition before the registration disappears.
func (m *Manager) Delete(ctx context.Context, workflowName string) error {
	metadata, err := m.Get(ctx, workflowName)
	if err != nil {
		return err
	}

	if err := m.runs.DeleteRuns(ctx, workflowName); err != nil {
		return err
	}

	engineSvc, err := m.resolver.Service(ctx, metadata)
	if err != nil {
		return err
	}
	rq := model.EngineRequest{
		WorkflowID:   metadata.WorkflowID,
		WorkflowName: metadata.WorkflowName,
		DagName:      metadata.DagName(),
	}
	if err := engineSvc.DeleteWorkflow(ctx, rq); err != nil {
		return err
	}

	if err := m.metadata.DeleteWorkflow(ctx, workflowName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("workflow %s: %w", workflowName, ErrWorkflowNotFound)
		}
		return err
	}

	m.logger.Info("workflow deleted", slog.String(internallog.WorkflowKey, workflowName))
	return nil
}
