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

// Package store defines the persistence contracts the orchestration core
// consumes: workflow metadata documents and workflow run documents with
// cursor pagination. Implementations live in the memory and sqlite
// subpackages.
package store

import (
	"context"
	"errors"

	"github.com/tombee/flightdeck/internal/model"
)

var (
	// ErrNotFound is returned on lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate-key writes, e.g. a trigger
	// reusing an existing run id.
	ErrAlreadyExists = errors.New("already exists")
)

// MetadataStore persists workflow registrations, keyed by workflow name.
type MetadataStore interface {
	// CreateWorkflow stores a new registration. Returns ErrAlreadyExists
	// when the name is taken.
	CreateWorkflow(ctx context.Context, metadata *model.WorkflowMetadata) error

	// GetWorkflow retrieves a registration by name. Returns ErrNotFound on
	// a miss.
	GetWorkflow(ctx context.Context, workflowName string) (*model.WorkflowMetadata, error)

	// ListWorkflows returns registrations whose name starts with prefix;
	// an empty prefix returns all.
	ListWorkflows(ctx context.Context, prefix string) ([]*model.WorkflowMetadata, error)

	// DeleteWorkflow removes a registration. Returns ErrNotFound on a
	// miss.
	DeleteWorkflow(ctx context.Context, workflowName string) error
}

// RunStore persists workflow runs, keyed by (workflowName, runId).
type RunStore interface {
	// SaveRun stores a new run. Returns ErrAlreadyExists when the run id
	// is taken within the workflow.
	SaveRun(ctx context.Context, run *model.WorkflowRun) error

	// GetRun retrieves a run. Returns ErrNotFound on a miss.
	GetRun(ctx context.Context, workflowName, runID string) (*model.WorkflowRun, error)

	// UpdateRun overwrites an existing run. Returns ErrNotFound when the
	// run does not exist.
	UpdateRun(ctx context.Context, run *model.WorkflowRun) error

	// DeleteRuns removes the given runs of one workflow in a single batch.
	DeleteRuns(ctx context.Context, workflowName string, runIDs []string) error

	// ListRuns returns one page of the workflow's runs. The cursor is
	// opaque; an empty cursor in the returned page means the listing is
	// exhausted.
	ListRuns(ctx context.Context, workflowName string, limit int, cursor string) (*model.RunPage, error)
}

// Store composes the two persistence contracts.
type Store interface {
	MetadataStore
	RunStore
}
