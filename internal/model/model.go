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

// Package model holds the domain types shared across the control plane:
// workflow registrations, workflow runs, and the value objects exchanged
// with the scheduling engine.
package model

// Registration instruction keys recognized by the control plane. The
// instruction map is otherwise opaque and passed through to the engine.
const (
	// InstructionDagName overrides the engine-facing DAG identifier.
	// When absent the workflow name is used.
	InstructionDagName = "dagName"

	// InstructionExternalSecret names the secret holding the connection
	// configuration of a non-default engine deployment.
	InstructionExternalSecret = "externalAirflowSecret"
)

// WorkflowMetadata is a registered workflow definition. The name is unique
// and immutable and doubles as the engine's DAG identifier unless the
// registration instructions override it.
type WorkflowMetadata struct {
	WorkflowID                       string         `json:"workflowId"`
	WorkflowName                     string         `json:"workflowName"`
	Description                      string         `json:"description,omitempty"`
	CreatedBy                        string         `json:"createdBy"`
	CreationTimestamp                int64          `json:"creationTimestamp"`
	Version                          int            `json:"version"`
	IsDeployedThroughWorkflowService bool           `json:"isDeployedThroughWorkflowService"`
	RegistrationInstructions         map[string]any `json:"registrationInstructions,omitempty"`
}

// DagName returns the engine-facing DAG identifier: the dagName registration
// instruction when present and non-empty, else the workflow name.
// Instructions may legitimately be nil.
func (m *WorkflowMetadata) DagName() string {
	if m.RegistrationInstructions != nil {
		if v, ok := m.RegistrationInstructions[InstructionDagName].(string); ok && v != "" {
			return v
		}
	}
	return m.WorkflowName
}

// ExternalSecretID returns the external engine secret identifier from the
// registration instructions, if one is set.
func (m *WorkflowMetadata) ExternalSecretID() (string, bool) {
	if m.RegistrationInstructions == nil {
		return "", false
	}
	v, ok := m.RegistrationInstructions[InstructionExternalSecret].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WorkflowRun is one execution instance of a workflow. Timestamps are epoch
// milliseconds; EndTimeStamp is zero until the run reaches a terminal status.
type WorkflowRun struct {
	RunID          string `json:"runId"`
	WorkflowID     string `json:"workflowId"`
	WorkflowName   string `json:"workflowName"`
	Status         Status `json:"status"`
	StartTimeStamp int64  `json:"startTimeStamp"`
	EndTimeStamp   int64  `json:"endTimeStamp,omitempty"`
	SubmittedBy    string `json:"submittedBy"`

	// EngineExecutionDate is the execution date echoed back by the engine
	// at trigger time, kept for the legacy status lookup path.
	EngineExecutionDate string `json:"workflowEngineExecutionDate,omitempty"`
}

// EngineRequest carries the subset of run and workflow identity one engine
// call needs. It is never persisted.
type EngineRequest struct {
	RunID              string
	WorkflowID         string
	WorkflowName       string
	DagName            string
	ExecutionTimeStamp int64
	ExecutionDate      string
	IsSystemWorkflow   bool
}

// TriggerResponse is the engine's answer to a trigger call: the execution
// date it assigned and the run identifier it echoed back.
type TriggerResponse struct {
	ExecutionDate string `json:"execution_date"`
	RunID         string `json:"run_id"`
}

// RunPage is one page of a cursor-driven run listing. An empty cursor means
// the listing is exhausted.
type RunPage struct {
	Items  []*WorkflowRun
	Cursor string
}

// ListRunsOptions filters a run listing.
type ListRunsOptions struct {
	Limit  int
	Cursor string
}

// TriggerRunRequest is a caller's request to start a run. RunID is optional;
// one is generated when absent. ExecutionContext is opaque to the control
// plane and handed to the engine.
type TriggerRunRequest struct {
	RunID            string         `json:"runId,omitempty"`
	ExecutionContext map[string]any `json:"executionContext,omitempty"`
}

// ExternalEngineConfig is the connection configuration of a non-default
// engine deployment, parsed from an externally stored secret. It is treated
// as immutable once resolved.
type ExternalEngineConfig struct {
	Version       string
	APIClientType string
	ConfigMap     map[string]any
}

// StringValue returns the named configMap entry as a string, or "" when the
// entry is absent or not a string.
func (c *ExternalEngineConfig) StringValue(key string) string {
	v, _ := c.ConfigMap[key].(string)
	return v
}

// EngineInfo identifies one connected engine deployment and its reported
// version.
type EngineInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
