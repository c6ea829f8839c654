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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  url: http://airflow:8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("listen = %q, want :8080", cfg.Server.Listen)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Engine.Version != "v2" {
		t.Errorf("engine version = %q, want v2", cfg.Engine.Version)
	}
	if cfg.Storage.Backend != "sqlite" || !cfg.Storage.WAL {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Secrets.Backend != "env" {
		t.Errorf("secrets backend = %q, want env", cfg.Secrets.Backend)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: 127.0.0.1:9000
  shutdown_timeout: 10s
auth:
  enabled: true
  api_keys:
    - key: secret-key
      name: ci
      identity: ci@example.com
  rate_limit:
    enabled: true
    requests_per_second: 5
    burst_size: 10
engine:
  url: http://airflow:8080
  app_key: app-key
  version: v1
storage:
  backend: memory
secrets:
  backend: file
  dir: /etc/flightdeck/secrets
log:
  level: debug
  format: text
tracing:
  enabled: true
  exporter: stdout
  sample_ratio: 0.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Identity != "ci@example.com" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Engine.Version != "v1" {
		t.Errorf("engine version = %q", cfg.Engine.Version)
	}
	if cfg.Secrets.Dir != "/etc/flightdeck/secrets" {
		t.Errorf("secrets dir = %q", cfg.Secrets.Dir)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 0.5 {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  url: http://airflow:8080
`)
	t.Setenv("FLIGHTDECK_LISTEN", ":7070")
	t.Setenv("FLIGHTDECK_ENGINE_URL", "http://other:8080")
	t.Setenv("FLIGHTDECK_ENGINE_VERSION", "v1")
	t.Setenv("FLIGHTDECK_JWT_SECRET", "hush")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":7070" {
		t.Errorf("listen = %q, want :7070", cfg.Server.Listen)
	}
	if cfg.Engine.URL != "http://other:8080" {
		t.Errorf("engine url = %q", cfg.Engine.URL)
	}
	if cfg.Engine.Version != "v1" {
		t.Errorf("engine version = %q", cfg.Engine.Version)
	}
	if cfg.Auth.JWTSecret != "hush" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
	}{
		{"missing engine url", func(c *Config) { c.Engine.URL = "" }},
		{"bad engine version", func(c *Config) { c.Engine.Version = "v9" }},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"bad secrets backend", func(c *Config) { c.Secrets.Backend = "vault" }},
		{"file secrets without dir", func(c *Config) { c.Secrets.Backend = "file" }},
		{"bad tracing exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }},
		{"bad sample ratio", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRatio = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.URL = "http://airflow:8080"
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
