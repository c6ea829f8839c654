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

// Package memory provides an in-memory store backend, used for tests and
// for running the daemon without persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/store"
)

// Backend is a mutex-guarded map store. Values are copied on the way in and
// out so callers never share memory with the store.
type Backend struct {
	mu        sync.RWMutex
	workflows map[string]*model.WorkflowMetadata
	runs      map[string]map[string]*model.WorkflowRun
	runOrder  map[string][]string
}

var _ store.Store = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		workflows: make(map[string]*model.WorkflowMetadata),
		runs:      make(map[string]map[string]*model.WorkflowRun),
		runOrder:  make(map[string][]string),
	}
}

// CreateWorkflow stores a new workflow registration.
func (b *Backend) CreateWorkflow(ctx context.Context, metadata *model.WorkflowMetadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.workflows[metadata.WorkflowName]; ok {
		return fmt.Errorf("workflow %s: %w", metadata.WorkflowName, store.ErrAlreadyExists)
	}
	b.workflows[metadata.WorkflowName] = copyMetadata(metadata)
	return nil
}

// GetWorkflow retrieves a workflow registration by name.
func (b *Backend) GetWorkflow(ctx context.Context, workflowName string) (*model.WorkflowMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	metadata, ok := b.workflows[workflowName]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowName, store.ErrNotFound)
	}
	return copyMetadata(metadata), nil
}

// ListWorkflows returns registrations matching the prefix, sorted by name.
func (b *Backend) ListWorkflows(ctx context.Context, prefix string) ([]*model.WorkflowMetadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*model.WorkflowMetadata
	for name, metadata := range b.workflows {
		if strings.HasPrefix(name, prefix) {
			out = append(out, copyMetadata(metadata))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowName < out[j].WorkflowName })
	return out, nil
}

// DeleteWorkflow removes a workflow registration.
func (b *Backend) DeleteWorkflow(ctx context.Context, workflowName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.workflows[workflowName]; !ok {
		return fmt.Errorf("workflow %s: %w", workflowName, store.ErrNotFound)
	}
	delete(b.workflows, workflowName)
	return nil
}

// SaveRun stores a new workflow run.
func (b *Backend) SaveRun(ctx context.Context, run *model.WorkflowRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.runs[run.WorkflowName]
	if byID == nil {
		byID = make(map[string]*model.WorkflowRun)
		b.runs[run.WorkflowName] = byID
	}
	if _, ok := byID[run.RunID]; ok {
		return fmt.Errorf("run %s of workflow %s: %w", run.RunID, run.WorkflowName, store.ErrAlreadyExists)
	}
	byID[run.RunID] = copyRun(run)
	b.runOrder[run.WorkflowName] = append(b.runOrder[run.WorkflowName], run.RunID)
	return nil
}

// GetRun retrieves one run of a workflow.
func (b *Backend) GetRun(ctx context.Context, workflowName, runID string) (*model.WorkflowRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, ok := b.runs[workflowName][runID]
	if !ok {
		return nil, fmt.Errorf("run %s of workflow %s: %w", runID, workflowName, store.ErrNotFound)
	}
	return copyRun(run), nil
}

// UpdateRun overwrites an existing run.
func (b *Backend) UpdateRun(ctx context.Context, run *model.WorkflowRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.runs[run.WorkflowName][run.RunID]; !ok {
		return fmt.Errorf("run %s of workflow %s: %w", run.RunID, run.WorkflowName, store.ErrNotFound)
	}
	b.runs[run.WorkflowName][run.RunID] = copyRun(run)
	return nil
}

// DeleteRuns removes the given runs of one workflow. Missing ids are ignored.
func (b *Backend) DeleteRuns(ctx context.Context, workflowName string, runIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.runs[workflowName]
	if byID == nil {
		return nil
	}
	doomed := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		doomed[id] = true
		delete(byID, id)
	}
	order := b.runOrder[workflowName][:0]
	for _, id := range b.runOrder[workflowName] {
		if !doomed[id] {
			order = append(order, id)
		}
	}
	b.runOrder[workflowName] = order
	return nil
}

// ListRuns returns one page of a workflow's runs in insertion order. The
// cursor is the offset into that order.
func (b *Backend) ListRuns(ctx context.Context, workflowName string, limit int, cursor string) (*model.RunPage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		offset = parsed
	}

	order := b.runOrder[workflowName]
	if offset > len(order) {
		offset = len(order)
	}
	end := len(order)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := &model.RunPage{}
	for _, id := range order[offset:end] {
		page.Items = append(page.Items, copyRun(b.runs[workflowName][id]))
	}
	if end < len(order) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func copyMetadata(m *model.WorkflowMetadata) *model.WorkflowMetadata {
	out := *m
	if m.RegistrationInstructions != nil {
		out.RegistrationInstructions = make(map[string]any, len(m.RegistrationInstructions))
		for k, v := range m.RegistrationInstructions {
			out.RegistrationInstructions[k] = v
		}
	}
	return &out
}

func copyRun(r *model.WorkflowRun) *model.WorkflowRun {
	out := *r
	return &out
}
