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

// Package secrets provides read access to externally stored engine
// connection secrets. A secret is an opaque JSON blob selected by
// identifier; parsing is the resolver's concern.
package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when a secret identifier does not exist in
// the backing store.
var ErrSecretNotFound = errors.New("secret not found")

// Store resolves secret identifiers to their raw contents.
type Store interface {
	// GetSecret retrieves a secret by identifier. Returns
	// ErrSecretNotFound if not present.
	GetSecret(ctx context.Context, id string) ([]byte, error)
}
