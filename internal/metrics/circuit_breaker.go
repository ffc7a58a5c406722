// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker metrics are labelled by breaker name; the daemon runs one, "web", in front
// of the preview scraper.
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgsearch_circuit_breaker_state",
		Help: "Active breaker state (1) per breaker; the other states read 0",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_circuit_breaker_trips_total",
		Help: "Breaker transitions to open, by cause",
	}, []string{"component", "reason"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_circuit_breaker_rejections_total",
		Help: "Upstream calls refused while the breaker was open",
	}, []string{"component"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetCircuitBreakerState marks state as the active one for component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(component, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}

// RecordCircuitBreakerRejection counts a call short-circuited by an open breaker.
func RecordCircuitBreakerRejection(component string) {
	breakerRejections.WithLabelValues(component).Inc()
}
