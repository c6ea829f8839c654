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

import "testing"

func TestStatusPartitions(t *testing.T) {
	for _, s := range ActiveStatuses() {
		if !s.Active() || s.Completed() {
			t.Errorf("%q must be active and not completed", s)
		}
	}
	for _, s := range CompletedStatuses() {
		if !s.Completed() || s.Active() {
			t.Errorf("%q must be completed and not active", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"running", StatusRunning},
		{"RUNNING", StatusRunning},
		{"Success", StatusSuccess},
		{"queued", StatusQueued},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseStatus("levitating"); err == nil {
		t.Error("unknown status did not fail")
	}
}
