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
	"time"
)

const (
	taskInstancesEndpoint = "api/v1/dags/%s/dagRuns/%s/taskInstances"
	xcomEntriesEndpoint   = taskInstancesEndpoint + "/%s/xcomEntries"
	xcomValueEndpoint     = xcomEntriesEndpoint + "/%s"

	// keyXcom is the sub-field the assembled XCom map is merged under in
	// the returned task record.
	keyXcom = "xcom"
)

// Extension implements reads the stable v1 API offers beyond the core
// trigger/status operations.
type Extension interface {
	// LatestTaskDetails returns the run's most recently finished task
	// instance, merged with that task's XCom key/value map under "xcom".
	LatestTaskDetails(ctx context.Context, dagName, runID string) (map[string]any, error)
}

// StableExtension implements Extension against the stable v1 API.
type StableExtension struct {
	client Client
	logger *slog.Logger
}

var _ Extension = (*StableExtension)(nil)

// NewStableExtension creates the stable-protocol engine extension.
func NewStableExtension(client Client, logger *slog.Logger) *StableExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &StableExtension{client: client, logger: logger}
}

// LatestTaskDetails chains three engine reads: the run's task-instance list,
// the latest task's XCom entry listing, and one read per XCom key. Ties on
// end_date resolve to the first task encountered.
func (e *StableExtension) LatestTaskDetails(ctx context.Context, dagName, runID string) (map[string]any, error) {
	tasks, err := e.runTasks(ctx, dagName, runID)
	if err != nil {
		return nil, err
	}

	latest := latestTask(tasks)
	if latest == nil {
		e.logger.Info("task instances not found",
			slog.String("dag_name", dagName),
			slog.String("run_id", runID))
		return nil, fmt.Errorf("%w: no task instances for run %s", ErrNotFound, runID)
	}
	taskID, _ := latest["task_id"].(string)

	keys, err := e.taskXcomKeys(ctx, dagName, runID, taskID)
	if err != nil {
		return nil, err
	}

	xcom, err := e.xcomValues(ctx, dagName, runID, taskID, keys)
	if err != nil {
		return nil, err
	}

	detail := make(map[string]any, len(latest)+1)
	for k, v := range latest {
		detail[k] = v
	}
	detail[keyXcom] = xcom
	return detail, nil
}

// runTasks fetches the run's task-instance list.
func (e *StableExtension) runTasks(ctx context.Context, dagName, runID string) ([]map[string]any, error) {
	endpoint := fmt.Sprintf(taskInstancesEndpoint, dagName, runID)
	errMsg := fmt.Sprintf("failed to fetch run tasks with id %s and name %s", runID, dagName)

	resp, err := e.client.Call(ctx, http.MethodGet, endpoint, nil, errMsg)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		TaskInstances json.RawMessage `json:"task_instances"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var tasks []map[string]any
	if err := json.Unmarshal(parsed.TaskInstances, &tasks); err != nil {
		return nil, fmt.Errorf("%w: task_instances is not a list", ErrMalformedResponse)
	}
	return tasks, nil
}

// taskXcomKeys fetches the XCom entry keys published by one task.
func (e *StableExtension) taskXcomKeys(ctx context.Context, dagName, runID, taskID string) ([]string, error) {
	endpoint := fmt.Sprintf(xcomEntriesEndpoint, dagName, runID, taskID)
	errMsg := fmt.Sprintf("failed to fetch task xcom entries, task id %s", taskID)

	resp, err := e.client.Call(ctx, http.MethodGet, endpoint, nil, errMsg)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		XcomEntries json.RawMessage `json:"xcom_entries"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var entries []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(parsed.XcomEntries, &entries); err != nil {
		return nil, fmt.Errorf("%w: xcom_entries is not a list", ErrMalformedResponse)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}
	return keys, nil
}

// xcomValues reads each XCom key's value and assembles the key/value map.
func (e *StableExtension) xcomValues(ctx context.Context, dagName, runID, taskID string, keys []string) (map[string]any, error) {
	errMsg := fmt.Sprintf("failed to fetch xcom values for task id %s", taskID)

	values := make(map[string]any, len(keys))
	for _, key := range keys {
		endpoint := fmt.Sprintf(xcomValueEndpoint, dagName, runID, taskID, key)
		resp, err := e.client.Call(ctx, http.MethodGet, endpoint, nil, errMsg)
		if err != nil {
			return nil, err
		}
		var parsed struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		values[key] = parsed.Value
	}
	return values, nil
}

// latestTask selects the task instance with the temporally latest end_date.
// Tasks without a parseable end_date are skipped; ties keep the first task
// encountered. Returns nil for an empty list.
func latestTask(tasks []map[string]any) map[string]any {
	var latest map[string]any
	var latestEnd time.Time
	for _, task := range tasks {
		raw, _ := task["end_date"].(string)
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if latest == nil || end.After(latestEnd) {
			latest = task
			latestEnd = end
		}
	}
	return latest
}
