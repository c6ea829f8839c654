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
	"fmt"
	"log/slog"
	"strings"
)

// Engine version strings dispatching to a protocol variant. Comparison is
// case-insensitive.
const (
	VersionLegacy = "v1"
	VersionStable = "v2"
)

// ClientTypeBasicAuth is the supported API client type for engine
// connections. Comparison is case-insensitive.
const ClientTypeBasicAuth = "BasicAuth"

// NewService returns the protocol implementation serving the given engine
// version string.
func NewService(version string, client Client, logger *slog.Logger) (Service, error) {
	switch strings.ToLower(version) {
	case VersionLegacy:
		return NewLegacyService(client, logger), nil
	case VersionStable:
		return NewStableService(client, logger), nil
	}
	return nil, fmt.Errorf("%w: unsupported engine version %q", ErrInvalidArgument, version)
}

// NewExtension returns the extension implementation serving the given engine
// version string. Only the stable protocol exposes the task and XCom reads.
func NewExtension(version string, client Client, logger *slog.Logger) (Extension, error) {
	switch strings.ToLower(version) {
	case VersionLegacy:
		return unsupportedExtension{version: version}, nil
	case VersionStable:
		return NewStableExtension(client, logger), nil
	}
	return nil, fmt.Errorf("%w: unsupported engine version %q", ErrInvalidArgument, version)
}

// NewClient constructs a Client of the given API client type from an engine
// connection config map ("url", "appKey").
func NewClient(clientType string, configMap map[string]any, logger *slog.Logger) (Client, error) {
	if !strings.EqualFold(clientType, ClientTypeBasicAuth) {
		return nil, fmt.Errorf("%w: unsupported engine api client type %q", ErrInvalidArgument, clientType)
	}
	url, _ := configMap["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: engine config is missing url", ErrInvalidArgument)
	}
	appKey, _ := configMap["appKey"].(string)
	return NewBasicAuthClient(ClientConfig{
		BaseURL: url,
		AppKey:  appKey,
		Logger:  logger,
	}), nil
}

// unsupportedExtension serves versions whose protocol has no task or XCom
// reads.
type unsupportedExtension struct {
	version string
}

func (e unsupportedExtension) LatestTaskDetails(ctx context.Context, dagName, runID string) (map[string]any, error) {
	return nil, fmt.Errorf("%w: task details are not available for engine version %q", ErrInvalidArgument, e.version)
}
