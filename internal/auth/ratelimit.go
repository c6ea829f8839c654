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

package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// RequestsPerSecond is the number of requests allowed per second per
	// caller.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size (token bucket capacity).
	BurstSize int
}

// RateLimiter provides per-caller rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimitConfig
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a rate limiter from the given configuration.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the caller may proceed, consuming one token if so.
func (l *RateLimiter) Allow(callerID string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[callerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize)
		l.limiters[callerID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
