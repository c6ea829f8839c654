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

// Package auth provides authentication middleware for the control plane API
// and carries the authenticated caller's identity through the request
// context. The identity is what run submission records as submittedBy and
// what the stable engine protocol injects into execution contexts.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "token"
)

// User represents an authenticated caller.
type User struct {
	// ID is the caller's stable identity, typically an email address.
	ID string

	// Name is a human-readable name for the credential used.
	Name string
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}

// ContextWithUser returns a new context with the given user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// TokenFromContext extracts the caller's raw bearer token. Engine trigger
// payloads forward it so downstream tasks can call back with the caller's
// credential.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

// ContextWithToken returns a new context carrying the raw bearer token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// APIKey is a static bearer credential with metadata.
type APIKey struct {
	// Key is the actual API key value.
	Key string `yaml:"key"`

	// Name is a human-readable name for the key.
	Name string `yaml:"name"`

	// Identity is recorded as the caller identity for this key.
	Identity string `yaml:"identity"`
}

// Config contains authentication configuration.
type Config struct {
	// Enabled controls whether authentication is required. When disabled,
	// requests pass through with an anonymous identity.
	Enabled bool

	// APIKeys is the list of valid API keys.
	APIKeys []APIKey

	// JWTSecret enables HS256 bearer-token validation when non-empty.
	// Token subjects become the caller identity.
	JWTSecret string

	// RateLimit contains rate limiting configuration.
	RateLimit RateLimitConfig

	// Logger for audit logging.
	Logger *slog.Logger
}

// Middleware authenticates requests and stamps the caller identity into the
// request context.
type Middleware struct {
	config      Config
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(cfg Config) *Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
		logger:      logger,
	}
}

// Wrap returns a handler enforcing authentication and rate limits before
// delegating to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn("authentication failed",
				slog.String("remote", r.RemoteAddr),
				slog.Any("error", err))
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !m.rateLimiter.Allow(user.ID) {
			writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
			ctx = ContextWithToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the caller identity from the Authorization header.
func (m *Middleware) authenticate(r *http.Request) (*User, error) {
	if !m.config.Enabled {
		return &User{ID: "anonymous", Name: "anonymous"}, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}

	for i := range m.config.APIKeys {
		key := &m.config.APIKeys[i]
		if subtle.ConstantTimeCompare([]byte(key.Key), []byte(token)) == 1 {
			identity := key.Identity
			if identity == "" {
				identity = key.Name
			}
			return &User{ID: identity, Name: key.Name}, nil
		}
	}

	if m.config.JWTSecret != "" {
		return m.validateJWT(token)
	}

	return nil, fmt.Errorf("unknown credential")
}

// validateJWT verifies an HS256 token and maps its subject onto the caller
// identity.
func (m *Middleware) validateJWT(token string) (*User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &User{ID: subject, Name: subject}, nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
