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

package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a workflow run.
//
// Runs move SUBMITTED -> {RUNNING, QUEUED} -> {FINISHED, FAILED, SUCCESS}.
// Engines may report a terminal state before any intermediate state is
// observed, so direct jumps to a completed status are valid. No transition
// out of a completed status is valid; callers enforce that, not this type.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusQueued    Status = "queued"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusSuccess   Status = "success"
)

// ActiveStatuses are the non-terminal states. A run in one of these states
// is reconciled against the engine on read.
func ActiveStatuses() []Status {
	return []Status{StatusSubmitted, StatusRunning, StatusQueued}
}

// CompletedStatuses are the terminal states. Reaching one of these stamps
// the run's end timestamp.
func CompletedStatuses() []Status {
	return []Status{StatusFinished, StatusFailed, StatusSuccess}
}

// Active reports whether s is a non-terminal status.
func (s Status) Active() bool {
	switch s {
	case StatusSubmitted, StatusRunning, StatusQueued:
		return true
	}
	return false
}

// Completed reports whether s is a terminal status.
func (s Status) Completed() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusSuccess:
		return true
	}
	return false
}

// String returns the wire representation of the status.
func (s Status) String() string { return string(s) }

// ParseStatus maps a string onto a Status, case-insensitively. The engine
// reports states in arbitrary case depending on deployment.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(raw)) {
	case StatusSubmitted:
		return StatusSubmitted, nil
	case StatusRunning:
		return StatusRunning, nil
	case StatusQueued:
		return StatusQueued, nil
	case StatusFinished:
		return StatusFinished, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusSuccess:
		return StatusSuccess, nil
	}
	return "", fmt.Errorf("unknown workflow run status %q", raw)
}
