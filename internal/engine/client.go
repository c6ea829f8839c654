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

// Package engine speaks the wire protocols of the external DAG scheduling
// engine. It hides the two incompatible protocol variants (the legacy
// "experimental" API and the stable "v1" API) behind one Service interface
// and exposes the low-level transport as a Client.
package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	internallog "github.com/tombee/flightdeck/internal/log"
)

// Response is a successful (2xx) engine reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is the low-level transport to one engine deployment. Implementations
// are stateless and safe for concurrent use. errorMessage is a domain-specific
// message preserved verbatim in the returned CallError when the engine rejects
// the call.
type Client interface {
	Call(ctx context.Context, method, endpoint string, body []byte, errorMessage string) (*Response, error)
}

// ClientConfig holds the connection parameters of one engine deployment.
type ClientConfig struct {
	// BaseURL is the engine's base URL, e.g. "https://airflow.example.com".
	BaseURL string

	// AppKey is the opaque application key sent as a basic Authorization
	// header on every call.
	AppKey string

	// HTTPClient overrides the default HTTP client. Callers bound requests
	// through the context; the client itself sets no timeout unless one is
	// configured here.
	HTTPClient *http.Client

	// Logger for call logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// BasicAuthClient is a Client that authenticates with a static application
// key. It holds no mutable state.
type BasicAuthClient struct {
	baseURL    string
	appKey     string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewBasicAuthClient creates a client for one engine deployment.
func NewBasicAuthClient(cfg ClientConfig) *BasicAuthClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BasicAuthClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appKey:     cfg.AppKey,
		httpClient: httpClient,
		logger:     internallog.WithComponent(logger, "engine_client"),
		tracer:     otel.Tracer("flightdeck/engine"),
	}
}

// Call performs one engine API call. Transport failures and non-2xx replies
// are wrapped into a CallError; anything else is a successful Response.
func (c *BasicAuthClient) Call(ctx context.Context, method, endpoint string, body []byte, errorMessage string) (*Response, error) {
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")

	ctx, span := c.tracer.Start(ctx, "engine.call",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("engine.endpoint", endpoint),
		))
	defer span.End()

	c.logger.Debug("calling engine endpoint",
		slog.String("url", url),
		slog.String("method", method))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		recordCall(method, "transport_error")
		span.SetStatus(codes.Error, err.Error())
		return nil, &CallError{Kind: Transport, Message: errorMessage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.appKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observeCallDuration(method, time.Since(start).Seconds())
	if err != nil {
		recordCall(method, "transport_error")
		span.SetStatus(codes.Error, err.Error())
		return nil, &CallError{Kind: Transport, Message: errorMessage, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		recordCall(method, "transport_error")
		span.SetStatus(codes.Error, err.Error())
		return nil, &CallError{Kind: Transport, Message: errorMessage, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		recordCall(method, "rejected")
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		c.logger.Warn("engine rejected call",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
		return nil, &CallError{
			Kind:       RemoteRejected,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Message:    errorMessage,
		}
	}

	recordCall(method, "ok")
	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
