// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_search_requests_total",
		Help: "Search requests by flavor",
	}, []string{"flavor"}) // flavor=typed|joined|encoded|web

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgsearch_search_dispatch_duration_seconds",
		Help:    "Wall time of one fan-out including the drain pass",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	}, []string{"flavor"})

	sourceOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_search_source_outcomes_total",
		Help: "Per-source task outcomes by provider",
	}, []string{"provider", "outcome"}) // outcome=completed|salvaged|timed_out|failed

	searchResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgsearch_search_results",
		Help:    "Number of result entries returned per request",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"flavor"})

	poolQueueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgsearch_search_pool_rejected_total",
		Help: "Tasks rejected because the worker pool queue was full",
	})

	poolInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgsearch_search_pool_inflight",
		Help: "Tasks currently executing on the shared worker pool",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgsearch_search_cache_lookups_total",
		Help: "Search cache lookups by result",
	}, []string{"flavor", "result"}) // result=hit|miss|shared
)

var knownOutcomes = map[string]struct{}{
	"completed": {},
	"salvaged":  {},
	"timed_out": {},
	"failed":    {},
}

// RecordSearch records one finished fan-out.
func RecordSearch(flavor string, d time.Duration, results int) {
	flavor = normalizeFlavor(flavor)
	searchRequestsTotal.WithLabelValues(flavor).Inc()
	searchDuration.WithLabelValues(flavor).Observe(d.Seconds())
	searchResults.WithLabelValues(flavor).Observe(float64(results))
}

// RecordSourceOutcome records the outcome of one per-source task.
func RecordSourceOutcome(provider, outcome string) {
	if _, ok := knownOutcomes[outcome]; !ok {
		outcome = "failed"
	}
	if provider == "" {
		provider = "unknown"
	}
	sourceOutcomeTotal.WithLabelValues(provider, outcome).Inc()
}

// IncPoolRejected counts a task the pool refused.
func IncPoolRejected() { poolQueueRejected.Inc() }

// AddPoolInFlight adjusts the in-flight task gauge.
func AddPoolInFlight(delta float64) { poolInFlight.Add(delta) }

// RecordCacheLookup records a search cache lookup.
func RecordCacheLookup(flavor, result string) {
	cacheLookups.WithLabelValues(normalizeFlavor(flavor), result).Inc()
}

func normalizeFlavor(flavor string) string {
	switch f := strings.ToLower(strings.TrimSpace(flavor)); f {
	case "typed", "joined", "encoded", "web":
		return f
	default:
		return "other"
	}
}
