// Copyright 2025 Blink Labs Software
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

package database

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type databaseMetrics struct {
	operations     *prometheus.CounterVec
	conflicts      prometheus.Counter
	votingTracked  prometheus.Gauge
	proposalWrites prometheus.Counter
}

func newDatabaseMetrics(promRegistry prometheus.Registerer) *databaseMetrics {
	promautoFactory := promauto.With(promRegistry)
	m := &databaseMetrics{}
	m.operations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realms_bot_database_operations_total",
			Help: "database operations by name and result",
		},
		[]string{"operation", "result"},
	)
	m.conflicts = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "realms_bot_database_txn_conflicts_total",
		Help: "write transactions retried after a conflict",
	})
	m.votingTracked = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "realms_bot_database_voting_proposals",
		Help: "proposals currently indexed as voting",
	})
	m.proposalWrites = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "realms_bot_database_proposal_writes_total",
		Help: "proposal records written",
	})
	return m
}
