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

// Package daemon wires the control plane together and runs the HTTP server
// with graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/flightdeck/internal/api"
	"github.com/tombee/flightdeck/internal/auth"
	"github.com/tombee/flightdeck/internal/config"
	internallog "github.com/tombee/flightdeck/internal/log"
	"github.com/tombee/flightdeck/internal/resolver"
	"github.com/tombee/flightdeck/internal/run"
	"github.com/tombee/flightdeck/internal/secrets"
	"github.com/tombee/flightdeck/internal/store"
	"github.com/tombee/flightdeck/internal/store/memory"
	"github.com/tombee/flightdeck/internal/store/sqlite"
	"github.com/tombee/flightdeck/internal/tracing"
	"github.com/tombee/flightdeck/internal/workflow"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// Daemon is the assembled control plane.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	tracer  *tracing.Provider
	cleanup []func() error
}

// New builds the daemon from configuration: storage, secret store, engine
// resolver, services, and the HTTP stack.
func New(ctx context.Context, cfg *config.Config, build BuildInfo) (*Daemon, error) {
	logger := internallog.New(&internallog.Config{
		Level:     cfg.Log.Level,
		Format:    internallog.Format(cfg.Log.Format),
		AddSource: cfg.Log.Source,
	})
	slog.SetDefault(logger)

	d := &Daemon{cfg: cfg, logger: logger}

	tracer, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceName:    "flightdeckd",
		ServiceVersion: build.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	d.tracer = tracer

	backend, err := d.openStore()
	if err != nil {
		return nil, err
	}

	secretStore, err := d.openSecrets()
	if err != nil {
		return nil, err
	}

	engineResolver, err := resolver.New(resolver.InternalConfig{
		URL:     cfg.Engine.URL,
		AppKey:  cfg.Engine.AppKey,
		Version: cfg.Engine.Version,
	}, secretStore, logger)
	if err != nil {
		return nil, err
	}

	runs := run.NewService(run.Config{
		Metadata: backend,
		Runs:     backend,
		Resolver: engineResolver,
		Logger:   logger,
	})
	workflows := workflow.NewManager(workflow.Config{
		Metadata: backend,
		Resolver: engineResolver,
		Runs:     runs,
		Logger:   logger,
	})

	authMiddleware := auth.NewMiddleware(auth.Config{
		Enabled:   cfg.Auth.Enabled,
		APIKeys:   cfg.Auth.APIKeys,
		JWTSecret: cfg.Auth.JWTSecret,
		RateLimit: auth.RateLimitConfig{
			Enabled:           cfg.Auth.RateLimit.Enabled,
			RequestsPerSecond: cfg.Auth.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Auth.RateLimit.BurstSize,
		},
		Logger: logger,
	})

	server := api.NewServer(api.Config{
		Workflows: workflows,
		Runs:      runs,
		Engines:   engineResolver,
		Auth:      authMiddleware,
		Metrics:   promhttp.Handler(),
		Version:   build.Version,
		Commit:    build.Commit,
		Logger:    logger,
	})

	d.server = &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Handler(),
	}
	return d, nil
}

// openStore builds the configured persistence backend.
func (d *Daemon) openStore() (store.Store, error) {
	switch d.cfg.Storage.Backend {
	case "memory":
		d.logger.Warn("using in-memory storage, state is lost on restart")
		return memory.New(), nil
	case "sqlite":
		backend, err := sqlite.New(sqlite.Config{
			Path: d.cfg.Storage.Path,
			WAL:  d.cfg.Storage.WAL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		d.cleanup = append(d.cleanup, backend.Close)
		return backend, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", d.cfg.Storage.Backend)
}

// openSecrets builds the configured secret store.
func (d *Daemon) openSecrets() (secrets.Store, error) {
	switch d.cfg.Secrets.Backend {
	case "env":
		return secrets.NewEnvStore(d.cfg.Secrets.EnvPrefix), nil
	case "file":
		fileStore, err := secrets.NewFileStore(d.cfg.Secrets.Dir, d.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open secret directory: %w", err)
		}
		d.cleanup = append(d.cleanup, fileStore.Close)
		return fileStore, nil
	}
	return nil, fmt.Errorf("unknown secrets backend %q", d.cfg.Secrets.Backend)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("listening", slog.String("addr", d.server.Addr))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.close()
		return err
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := d.server.Shutdown(shutdownCtx)
	if tracerErr := d.tracer.Shutdown(shutdownCtx); err == nil {
		err = tracerErr
	}
	if closeErr := d.close(); err == nil {
		err = closeErr
	}
	return err
}

// close releases backends in reverse acquisition order.
func (d *Daemon) close() error {
	var firstErr error
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		if err := d.cleanup[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
