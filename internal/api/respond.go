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

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tombee/flightdeck/internal/engine"
	"github.com/tombee/flightdeck/internal/run"
	"github.com/tombee/flightdeck/internal/workflow"
)

// writeJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps a domain error onto an HTTP status. Engine rejections
// surface as 502 with the domain message preserved; unknown errors collapse
// to 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, run.ErrWorkflowNotFound),
		errors.Is(err, run.ErrRunNotFound),
		errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrWorkflowAlreadyExists),
		errors.Is(err, run.ErrRunAlreadyExists),
		errors.Is(err, run.ErrRunCompleted),
		errors.Is(err, run.ErrActiveRunsPresent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		var callErr *engine.CallError
		if errors.As(err, &callErr) {
			message := callErr.Message
			if message == "" {
				message = "engine call failed"
			}
			writeError(w, http.StatusBadGateway, message)
			return
		}
		logger.Error("request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
