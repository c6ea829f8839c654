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

// Package api provides the HTTP API of the control plane.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tombee/flightdeck/internal/auth"
	internallog "github.com/tombee/flightdeck/internal/log"
	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/run"
	"github.com/tombee/flightdeck/internal/workflow"
)

// EngineLister reports the engine deployments the control plane talks to.
type EngineLister interface {
	ConnectedEngines(ctx context.Context) []model.EngineInfo
}

// Config wires a Server.
type Config struct {
	Workflows *workflow.Manager
	Runs      *run.Service
	Engines   EngineLister
	Auth      *auth.Middleware

	// Metrics serves GET /metrics when non-nil, typically promhttp.Handler().
	Metrics http.Handler

	Version string
	Commit  string
	Logger  *slog.Logger
}

// Server is the HTTP boundary: routing, request decoding, and the mapping of
// domain errors onto status codes. All behavior lives in the services.
type Server struct {
	workflows *workflow.Manager
	runs      *run.Service
	engines   EngineLister
	config    Config
	logger    *slog.Logger
}

// NewServer creates an API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		engines:   cfg.Engines,
		config:    cfg,
		logger:    internallog.WithComponent(logger, "api"),
	}
}

// Handler builds the full handler chain: probes and metrics stay open while
// the v1 API sits behind authentication, correlation ids, and request
// logging.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/workflow", s.handleCreateWorkflow)
	api.HandleFunc("GET /v1/workflow", s.handleListWorkflows)
	api.HandleFunc("GET /v1/workflow/{workflow_name}", s.handleGetWorkflow)
	api.HandleFunc("DELETE /v1/workflow/{workflow_name}", s.handleDeleteWorkflow)

	api.HandleFunc("POST /v1/workflow/{workflow_name}/workflowRun", s.handleTriggerRun)
	api.HandleFunc("GET /v1/workflow/{workflow_name}/workflowRun", s.handleListRuns)
	api.HandleFunc("GET /v1/workflow/{workflow_name}/workflowRun/{run_id}", s.handleGetRun)
	api.HandleFunc("PUT /v1/workflow/{workflow_name}/workflowRun/{run_id}", s.handleUpdateRunStatus)
	api.HandleFunc("GET /v1/workflow/{workflow_name}/workflowRun/{run_id}/latestInfo", s.handleLatestTaskDetails)

	api.HandleFunc("GET /v1/info", s.handleInfo)

	var protected http.Handler = api
	if s.config.Auth != nil {
		protected = s.config.Auth.Wrap(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	if s.config.Metrics != nil {
		root.Handle("GET /metrics", s.config.Metrics)
	}
	root.Handle("/", protected)

	handler := internallog.CorrelationMiddleware(root)
	return internallog.Middleware(s.logger)(handler)
}

// handleCreateWorkflow handles POST /v1/workflow.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	metadata, err := s.workflows.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

// handleListWorkflows handles GET /v1/workflow. The prefix query filters by
// workflow name prefix.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if workflows == nil {
		workflows = []*model.WorkflowMetadata{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

// handleGetWorkflow handles GET /v1/workflow/{workflow_name}.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	metadata, err := s.workflows.Get(r.Context(), r.PathValue("workflow_name"))
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, metadata)
}

// handleDeleteWorkflow handles DELETE /v1/workflow/{workflow_name}.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Delete(r.Context(), r.PathValue("workflow_name")); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTriggerRun handles POST /v1/workflow/{workflow_name}/workflowRun.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req model.TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	record, err := s.runs.Trigger(r.Context(), r.PathValue("workflow_name"), req)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleListRuns handles GET /v1/workflow/{workflow_name}/workflowRun with
// limit and cursor query parameters.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := model.ListRunsOptions{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		opts.Limit = limit
	}

	page, err := s.runs.ListRuns(r.Context(), r.PathValue("workflow_name"), opts)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []*model.WorkflowRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"cursor": page.Cursor,
	})
}

// handleGetRun handles GET /v1/workflow/{workflow_name}/workflowRun/{run_id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.runs.GetRun(r.Context(), r.PathValue("workflow_name"), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleUpdateRunStatus handles PUT /v1/workflow/{workflow_name}/workflowRun/{run_id}.
func (s *Server) handleUpdateRunStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.runs.UpdateStatus(r.Context(), r.PathValue("workflow_name"), r.PathValue("run_id"), status)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleLatestTaskDetails handles
// GET /v1/workflow/{workflow_name}/workflowRun/{run_id}/latestInfo.
func (s *Server) handleLatestTaskDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.runs.LatestTaskDetails(r.Context(), r.PathValue("workflow_name"), r.PathValue("run_id"))
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleInfo handles GET /v1/info: build identity plus the connected engine
// deployments and their reported versions.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":             "flightdeckd",
		"version":          s.config.Version,
		"commit":           s.config.Commit,
		"connectedEngines": s.engines.ConnectedEngines(r.Context()),
	})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /readyz.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
