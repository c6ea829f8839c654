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
	"errors"
	"testing"
)

func TestNewServiceDispatch(t *testing.T) {
	tests := []struct {
		version string
		want    any
	}{
		{"v1", (*LegacyService)(nil)},
		{"V1", (*LegacyService)(nil)},
		{"v2", (*StableService)(nil)},
		{"V2", (*StableService)(nil)},
	}
	for _, tt := range tests {
		svc, err := NewService(tt.version, &fakeClient{}, nil)
		if err != nil {
			t.Fatalf("NewService(%q): %v", tt.version, err)
		}
		switch tt.want.(type) {
		case *LegacyService:
			if _, ok := svc.(*LegacyService); !ok {
				t.Errorf("NewService(%q) = %T, want *LegacyService", tt.version, svc)
			}
		case *StableService:
			if _, ok := svc.(*StableService); !ok {
				t.Errorf("NewService(%q) = %T, want *StableService", tt.version, svc)
			}
		}
	}

	if _, err := NewService("v3", &fakeClient{}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewService(v3): error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewExtensionDispatch(t *testing.T) {
	ext, err := NewExtension("v2", &fakeClient{}, nil)
	if err != nil {
		t.Fatalf("NewExtension(v2): %v", err)
	}
	if _, ok := ext.(*StableExtension); !ok {
		t.Errorf("NewExtension(v2) = %T, want *StableExtension", ext)
	}

	legacy, err := NewExtension("v1", &fakeClient{}, nil)
	if err != nil {
		t.Fatalf("NewExtension(v1): %v", err)
	}
	if _, err := legacy.LatestTaskDetails(context.Background(), "d", "r"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("legacy LatestTaskDetails: error = %v, want ErrInvalidArgument", err)
	}

	if _, err := NewExtension("v3", &fakeClient{}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewExtension(v3): error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("basicauth", map[string]any{"url": "http://engine:8080", "appKey": "k"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*BasicAuthClient); !ok {
		t.Errorf("NewClient = %T, want *BasicAuthClient", client)
	}

	if _, err := NewClient("BasicAuth", map[string]any{}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing url: error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewClient("OAuth", map[string]any{"url": "http://engine:8080"}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unsupported client type: error = %v, want ErrInvalidArgument", err)
	}
}
