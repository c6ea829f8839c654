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

// Package resolver maps a workflow registration onto the engine deployment
// that executes it. Most workflows run on the internal engine configured at
// startup; a registration can point at an external deployment through the
// externalAirflowSecret instruction, whose secret holds the connection
// configuration.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tombee/flightdeck/internal/engine"
	internallog "github.com/tombee/flightdeck/internal/log"
	"github.com/tombee/flightdeck/internal/model"
	"github.com/tombee/flightdeck/internal/secrets"
)

// ErrSecretRetrieval wraps failures to fetch an external engine secret.
var ErrSecretRetrieval = errors.New("failed to retrieve engine secret")

// Secret keys of an external engine connection configuration.
const (
	keyVersion       = "version"
	keyAPIClientType = "airflowApiClientType"
)

// InternalName is the display name of the default engine deployment.
const InternalName = "Internal Airflow"

// Target is one resolved engine deployment.
type Target struct {
	Service   engine.Service
	Extension engine.Extension
}

// InternalConfig is the connection configuration of the default engine
// deployment, supplied at startup.
type InternalConfig struct {
	URL     string
	AppKey  string
	Version string
}

// Resolver resolves workflow registrations to engine targets. External
// targets are constructed once per secret identifier and cached for the
// process lifetime; rotating a secret requires a restart to pick up.
type Resolver struct {
	internal Target
	secrets  secrets.Store
	logger   *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*Target
}

// New creates a resolver with the internal engine built from cfg.
func New(cfg InternalConfig, secretStore secrets.Store, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = internallog.WithComponent(logger, "resolver")

	client := engine.NewBasicAuthClient(engine.ClientConfig{
		BaseURL: cfg.URL,
		AppKey:  cfg.AppKey,
		Logger:  logger,
	})
	service, err := engine.NewService(cfg.Version, client, logger)
	if err != nil {
		return nil, fmt.Errorf("internal engine: %w", err)
	}
	extension, err := engine.NewExtension(cfg.Version, client, logger)
	if err != nil {
		return nil, fmt.Errorf("internal engine: %w", err)
	}

	return &Resolver{
		internal: Target{Service: service, Extension: extension},
		secrets:  secretStore,
		logger:   logger,
		cache:    make(map[string]*Target),
	}, nil
}

// Service returns the engine service executing the given workflow.
func (r *Resolver) Service(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Service, error) {
	target, err := r.resolve(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return target.Service, nil
}

// Extension returns the engine extension of the given workflow's deployment.
func (r *Resolver) Extension(ctx context.Context, metadata *model.WorkflowMetadata) (engine.Extension, error) {
	target, err := r.resolve(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return target.Extension, nil
}

// resolve picks the internal target unless the registration names an external
// secret, in which case the external target is built on first use.
func (r *Resolver) resolve(ctx context.Context, metadata *model.WorkflowMetadata) (*Target, error) {
	secretID, ok := metadata.ExternalSecretID()
	if !ok {
		return &r.internal, nil
	}
	return r.external(ctx, secretID)
}

// external returns the cached target of the secret, constructing it under
// singleflight so concurrent misses share one secret fetch.
func (r *Resolver) external(ctx context.Context, secretID string) (*Target, error) {
	r.mu.RLock()
	target, ok := r.cache[secretID]
	r.mu.RUnlock()
	if ok {
		return target, nil
	}

	result, err, _ := r.group.Do(secretID, func() (any, error) {
		// Re-check under the flight: another caller may have populated
		// the cache between the read above and acquiring the flight.
		r.mu.RLock()
		target, ok := r.cache[secretID]
		r.mu.RUnlock()
		if ok {
			return target, nil
		}

		built, err := r.build(ctx, secretID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[secretID] = built
		r.mu.Unlock()

		r.logger.Info("connected external engine", slog.String("secret_id", secretID))
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Target), nil
}

// build fetches and parses the secret and constructs the engine target.
func (r *Resolver) build(ctx context.Context, secretID string) (*Target, error) {
	raw, err := r.secrets.GetSecret(ctx, secretID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrSecretRetrieval, secretID, err)
	}

	cfg, err := parseEngineConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("engine secret %q: %w", secretID, err)
	}

	client, err := engine.NewClient(cfg.APIClientType, cfg.ConfigMap, r.logger)
	if err != nil {
		return nil, fmt.Errorf("engine secret %q: %w", secretID, err)
	}
	service, err := engine.NewService(cfg.Version, client, r.logger)
	if err != nil {
		return nil, fmt.Errorf("engine secret %q: %w", secretID, err)
	}
	extension, err := engine.NewExtension(cfg.Version, client, r.logger)
	if err != nil {
		return nil, fmt.Errorf("engine secret %q: %w", secretID, err)
	}

	return &Target{Service: service, Extension: extension}, nil
}

// parseEngineConfig decodes an external engine secret. The version and client
// type keys are mandatory; everything else passes through as the config map
// handed to the client constructor.
func parseEngineConfig(raw []byte) (*model.ExternalEngineConfig, error) {
	var configMap map[string]any
	if err := json.Unmarshal(raw, &configMap); err != nil {
		return nil, fmt.Errorf("%w: malformed engine secret: %v", engine.ErrInvalidArgument, err)
	}

	version, _ := configMap[keyVersion].(string)
	if version == "" {
		return nil, fmt.Errorf("%w: engine secret is missing %s", engine.ErrInvalidArgument, keyVersion)
	}
	clientType, _ := configMap[keyAPIClientType].(string)
	if clientType == "" {
		return nil, fmt.Errorf("%w: engine secret is missing %s", engine.ErrInvalidArgument, keyAPIClientType)
	}

	return &model.ExternalEngineConfig{
		Version:       version,
		APIClientType: clientType,
		ConfigMap:     configMap,
	}, nil
}

// ConnectedEngines reports the internal engine and every external engine
// resolved so far, with each deployment's version fetched best-effort.
func (r *Resolver) ConnectedEngines(ctx context.Context) []model.EngineInfo {
	infos := []model.EngineInfo{{
		Name:    InternalName,
		Version: r.internal.Service.Version(ctx),
	}}

	r.mu.RLock()
	ids := make([]string, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	targets := make([]*Target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, r.cache[id])
	}
	r.mu.RUnlock()

	for i, id := range ids {
		infos = append(infos, model.EngineInfo{
			Name:    "External Airflow: " + id,
			Version: targets[i].Service.Version(ctx),
		})
	}
	return infos
}
