// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgsearch_session_phase",
		Help: "Current authentication phase (0 idle, 9 connected)",
	})

	handshakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_session_handshakes_total",
		Help: "Finished handshakes by auth mode and result",
	}, []string{"mode", "result"}) // result=connected|timeout|cancelled|failed

	handshakeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgsearch_session_handshake_duration_seconds",
		Help:    "Handshake duration including credential waits",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"mode"})

	credentialWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_session_credential_waits_total",
		Help: "Credential waits by rendezvous key and outcome",
	}, []string{"key", "outcome"}) // outcome=received|timeout|cancelled
)

var handshakeResults = map[string]struct{}{
	"connected": {},
	"timeout":   {},
	"cancelled": {},
	"failed":    {},
}

// SetSessionPhase publishes the current phase value.
func SetSessionPhase(phase int) {
	sessionPhase.Set(float64(phase))
}

// RecordHandshake records a finished handshake. Unknown results are folded into "failed".
func RecordHandshake(mode, result string, d time.Duration) {
	if _, ok := handshakeResults[result]; !ok {
		result = "failed"
	}
	if mode == "" {
		mode = "unknown"
	}
	handshakeTotal.WithLabelValues(mode, result).Inc()
	handshakeDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordCredentialWait records how a credential wait ended.
func RecordCredentialWait(key, outcome string) {
	credentialWaitTotal.WithLabelValues(key, outcome).Inc()
}
