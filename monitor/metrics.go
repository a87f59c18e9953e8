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

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type monitorMetrics struct {
	notifications  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	storeErrors    prometheus.Counter
	decodeErrors   prometheus.Counter
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	sweeps         *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	proposalsSeen  prometheus.Gauge
	lastCycleEnded prometheus.Gauge
}

func newMonitorMetrics(promRegistry prometheus.Registerer) *monitorMetrics {
	promautoFactory := promauto.With(promRegistry)
	m := &monitorMetrics{}
	m.notifications = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realms_bot_monitor_notifications_total",
			Help: "notification delivery attempts by kind and result",
		},
		[]string{"kind", "result"},
	)
	m.transitions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realms_bot_monitor_transitions_total",
			Help: "proposal transitions observed by handling",
		},
		[]string{"handling"},
	)
	m.storeErrors = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "realms_bot_monitor_store_errors_total",
		Help: "proposal writes that failed after processing",
	})
	m.decodeErrors = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "realms_bot_monitor_decode_errors_total",
		Help: "proposal accounts skipped because they could not be decoded",
	})
	m.cycles = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realms_bot_monitor_cycles_total",
			Help: "fetch-diff-notify cycles by result",
		},
		[]string{"result"},
	)
	m.cycleDuration = promautoFactory.NewHistogram(prometheus.HistogramOpts{
		Name:    "realms_bot_monitor_cycle_duration_seconds",
		Help:    "fetch-diff-notify cycle duration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.sweeps = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realms_bot_monitor_reminder_sweeps_total",
			Help: "reminder sweeps by result",
		},
		[]string{"result"},
	)
	m.sweepDuration = promautoFactory.NewHistogram(prometheus.HistogramOpts{
		Name:    "realms_bot_monitor_reminder_sweep_duration_seconds",
		Help:    "reminder sweep duration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.proposalsSeen = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "realms_bot_monitor_snapshot_proposals",
		Help: "proposals in the last fetched snapshot",
	})
	m.lastCycleEnded = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "realms_bot_monitor_last_cycle_timestamp_seconds",
		Help: "unix time of the last successful cycle",
	})
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
