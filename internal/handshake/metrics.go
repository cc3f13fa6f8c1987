// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatusSuccess labels a successful stage or handshake. Failures are
// labelled with their error code.
const StatusSuccess = "success"

// StageTotal counts stage outcomes.
var StageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ooi_handshake_stage_total",
		Help: "Total number of handshake stages run, by stage and outcome",
	},
	[]string{"stage", "status"},
)

// HandshakeTotal counts handshake outcomes.
var HandshakeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ooi_handshake_total",
		Help: "Total number of handshakes, by operation and outcome",
	},
	[]string{"operation", "status"},
)

// HandshakeDuration observes end-to-end handshake latency.
var HandshakeDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ooi_handshake_duration_seconds",
		Help:    "Handshake duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RegisterMetrics registers the handshake metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(StageTotal)
	reg.MustRegister(HandshakeTotal)
	reg.MustRegister(HandshakeDuration)
}

// RecordStage increments the stage counter.
func RecordStage(stage, status string) {
	if status == "" {
		status = "error"
	}
	StageTotal.WithLabelValues(stage, status).Inc()
}

// RecordHandshakeResult increments the handshake counter.
func RecordHandshakeResult(operation, status string) {
	if status == "" {
		status = "error"
	}
	HandshakeTotal.WithLabelValues(operation, status).Inc()
}
