// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	receivedTotal          *prometheus.CounterVec
	invalidTotal           prometheus.Counter
	skippedTotal           prometheus.Counter
	ignoredTotal           prometheus.Counter
	transitionsTotal       *prometheus.CounterVec
	gcDuration             prometheus.Summary
	gcAlertsRemoved        prometheus.Counter
	gcRecordsRemoved       prometheus.Counter
	maintenanceTotal       prometheus.Counter
	maintenanceErrorsTotal prometheus.Counter
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		receivedTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_alerts_received_total",
			Help: "The total number of valid alert events received.",
		}, []string{"status"}),
		invalidTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_alerts_invalid_total",
			Help: "The total number of alert events rejected by validation.",
		}),
		skippedTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_alerts_deduplicated_total",
			Help: "The total number of alert events skipped as duplicates.",
		}),
		ignoredTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_alerts_ignored_total",
			Help: "The total number of alert events without effect on the alert lifecycle.",
		}),
		transitionsTotal: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "alertcore_alert_transitions_total",
			Help: "The total number of recorded alert state transitions.",
		}, []string{"from", "to", "trigger"}),
		gcDuration: promauto.With(r).NewSummary(prometheus.SummaryOpts{
			Name:       "alertcore_gc_duration_seconds",
			Help:       "Duration of the last alert garbage collection cycle.",
			Objectives: map[float64]float64{},
		}),
		gcAlertsRemoved: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_gc_alerts_removed_total",
			Help: "The total number of expired alerts removed by garbage collection.",
		}),
		gcRecordsRemoved: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_gc_records_removed_total",
			Help: "The total number of history records and notification attempts purged.",
		}),
		maintenanceTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_maintenance_total",
			Help: "How many maintenance cycles have run.",
		}),
		maintenanceErrorsTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "alertcore_maintenance_errors_total",
			Help: "How many maintenance cycles have failed.",
		}),
	}
}
