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
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse indicates the engine replied 2xx but the body
	// could not be parsed or violated the expected shape. Surfaced as an
	// internal error, not a user input error.
	ErrMalformedResponse = errors.New("malformed engine response")

	// ErrInvalidArgument indicates a request was rejected before any
	// engine call was attempted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the engine holds no matching resource, e.g. a
	// run with no task instances.
	ErrNotFound = errors.New("not found")
)

// CallErrorKind classifies engine call failures.
type CallErrorKind int

const (
	// Transport covers connection failures and timeouts before a response
	// was received.
	Transport CallErrorKind = iota
	// RemoteRejected covers non-2xx engine responses.
	RemoteRejected
)

func (k CallErrorKind) String() string {
	if k == Transport {
		return "transport"
	}
	return "remote_rejected"
}

// CallError is a failed engine call. For RemoteRejected errors Message holds
// the caller-supplied domain message verbatim, with the raw status and body
// kept for diagnostics. Engine calls are never retried; a CallError always
// propagates to the caller.
type CallError struct {
	Kind       CallErrorKind
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *CallError) Error() string {
	if e.Kind == Transport {
		return fmt.Sprintf("engine call failed: %v", e.Err)
	}
	return fmt.Sprintf("%s: engine returned status %d", e.Message, e.StatusCode)
}

func (e *CallError) Unwrap() error { return e.Err }
