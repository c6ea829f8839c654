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

package run

import "errors"

var (
	// ErrWorkflowNotFound is returned when the named workflow is not
	// registered.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned when the named run does not exist.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrRunAlreadyExists is returned when a trigger reuses an existing run
	// identifier.
	ErrRunAlreadyExists = errors.New("workflow run already exists")

	// ErrRunCompleted rejects status updates on runs that already reached a
	// terminal status.
	ErrRunCompleted = errors.New("workflow run already completed")

	// ErrActiveRunsPresent refuses a bulk delete while any run of the
	// workflow is still active.
	ErrActiveRunsPresent = errors.New("workflow has active runs")
)
