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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix is the environment variable prefix of the env store.
const DefaultEnvPrefix = "FLIGHTDECK_SECRET_"

// EnvStore reads secrets from environment variables. The identifier is
// uppercased and non-alphanumeric characters become underscores, so the
// secret "airflow-prod" resolves from FLIGHTDECK_SECRET_AIRFLOW_PROD.
type EnvStore struct {
	prefix string
}

var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an environment-backed secret store. An empty prefix
// selects DefaultEnvPrefix.
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvStore{prefix: prefix}
}

// GetSecret resolves the identifier's environment variable.
func (s *EnvStore) GetSecret(ctx context.Context, id string) ([]byte, error) {
	value, ok := os.LookupEnv(s.prefix + envName(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
	}
	return []byte(value), nil
}

// envName maps a secret identifier onto an environment variable suffix.
func envName(id string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, id)
	return mapped
}
