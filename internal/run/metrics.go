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

package run

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightdeck_runs_triggered_total",
		Help: "Total workflow runs triggered, by outcome.",
	}, []string{"outcome"})

	runsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightdeck_runs_reconciled_total",
		Help: "Total run status reconciliations against the engine, by result.",
	}, []string{"result"})

	runsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightdeck_runs_deleted_total",
		Help: "Total workflow runs removed by bulk deletes.",
	})
)
