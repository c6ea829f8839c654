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

// Package config loads and validates the daemon configuration from a YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/flightdeck/internal/auth"
	"github.com/tombee/flightdeck/internal/engine"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Secrets SecretsConfig `yaml:"secrets"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the address the API listens on.
	// Environment: FLIGHTDECK_LISTEN
	// Default: :8080
	Listen string `yaml:"listen"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	// Enabled controls whether authentication is required.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// APIKeys is the list of valid bearer API keys.
	APIKeys []auth.APIKey `yaml:"api_keys,omitempty"`

	// JWTSecret enables HS256 bearer-token validation when non-empty.
	// Environment: FLIGHTDECK_JWT_SECRET
	JWTSecret string `yaml:"jwt_secret,omitempty"`

	// RateLimit configures per-caller rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-caller rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	BurstSize         int     `yaml:"burst_size,omitempty"`
}

// EngineConfig configures the internal engine deployment.
type EngineConfig struct {
	// URL is the engine's base URL.
	// Environment: FLIGHTDECK_ENGINE_URL
	URL string `yaml:"url"`

	// AppKey is the application key sent on every engine call.
	// Environment: FLIGHTDECK_ENGINE_APPKEY
	AppKey string `yaml:"app_key,omitempty"`

	// Version selects the engine protocol: v1 (experimental API) or v2
	// (stable API).
	// Environment: FLIGHTDECK_ENGINE_VERSION
	// Default: v2
	Version string `yaml:"version"`
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	// Backend selects the store implementation: memory or sqlite.
	// Default: sqlite
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path.
	// Environment: FLIGHTDECK_DB_PATH
	// Default: flightdeck.db
	Path string `yaml:"path,omitempty"`

	// WAL enables SQLite Write-Ahead Logging.
	// Default: true
	WAL bool `yaml:"wal"`
}

// SecretsConfig configures the engine secret store.
type SecretsConfig struct {
	// Backend selects the secret store: env or file.
	// Default: env
	Backend string `yaml:"backend"`

	// EnvPrefix overrides the environment variable prefix of the env
	// backend. Default: FLIGHTDECK_SECRET_
	EnvPrefix string `yaml:"env_prefix,omitempty"`

	// Dir is the secret directory of the file backend.
	Dir string `yaml:"dir,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	// Default: json
	Format string `yaml:"format,omitempty"`

	// Source adds source file and line information to logs.
	Source bool `yaml:"source,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns span export on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter: otlp or stdout.
	// Default: otlp
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector endpoint, host:port.
	// Environment: FLIGHTDECK_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// SampleRatio is the trace sampling ratio in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Version: engine.VersionStable,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "flightdeck.db",
			WAL:     true,
		},
		Secrets: SecretsConfig{
			Backend: "env",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp",
			SampleRatio: 1.0,
		},
	}
}

// Load reads the configuration file, if any, and applies environment
// overrides. An empty path loads defaults plus the environment. Callers
// apply their own overrides before Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLIGHTDECK_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("FLIGHTDECK_ENGINE_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv("FLIGHTDECK_ENGINE_APPKEY"); v != "" {
		c.Engine.AppKey = v
	}
	if v := os.Getenv("FLIGHTDECK_ENGINE_VERSION"); v != "" {
		c.Engine.Version = v
	}
	if v := os.Getenv("FLIGHTDECK_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("FLIGHTDECK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("FLIGHTDECK_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("%w: engine.url is required", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Engine.Version) {
	case engine.VersionLegacy, engine.VersionStable:
	default:
		return fmt.Errorf("%w: engine.version must be %s or %s, got %q",
			ErrInvalidConfig, engine.VersionLegacy, engine.VersionStable, c.Engine.Version)
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the sqlite backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	switch c.Secrets.Backend {
	case "env":
	case "file":
		if c.Secrets.Dir == "" {
			return fmt.Errorf("%w: secrets.dir is required for the file backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown secrets.backend %q", ErrInvalidConfig, c.Secrets.Backend)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout":
		default:
			return fmt.Errorf("%w: unknown tracing.exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("%w: tracing.sample_ratio must be within [0, 1]", ErrInvalidConfig)
		}
	}

	return nil
}
