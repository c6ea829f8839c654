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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// engineCalls tracks engine API calls by HTTP method and outcome.
	engineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightdeck_engine_calls_total",
			Help: "Total engine API calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// engineCallDuration tracks engine API call latency.
	engineCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightdeck_engine_call_duration_seconds",
			Help:    "Engine API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// recordCall increments the call counter.
func recordCall(method, outcome string) {
	engineCalls.WithLabelValues(method, outcome).Inc()
}

// observeCallDuration records a call's latency.
func observeCallDuration(method string, seconds float64) {
	engineCallDuration.WithLabelValues(method).Observe(seconds)
}
