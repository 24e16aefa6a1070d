// Package metrics exports Prometheus metrics for match queries and profile refreshes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match request outcomes.
const (
	OutcomeMatched         = "matched"
	OutcomeFallback        = "fallback"
	OutcomeNotEligible     = "not_eligible"
	OutcomeProfileNotReady = "profile_not_ready"
	OutcomeNoEligibleUsers = "no_eligible_users"
	OutcomeUnavailable     = "unavailable"
	OutcomeError           = "error"
)

// Profile refresh results.
const (
	RefreshUpdated     = "updated"
	RefreshSkipped     = "skipped"
	RefreshEmbedFailed = "embed_failed"
	RefreshError       = "error"
)

// Metrics holds the collectors for one registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	matchRequests   *prometheus.CounterVec
	matchDuration   prometheus.Histogram
	fallbackMatches prometheus.Counter
	answersRecorded prometheus.Counter
	refreshes       *prometheus.CounterVec
}

// New creates collectors on a fresh registry. Go runtime and process collectors are included.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.matchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulsync",
			Name:      "match_requests_total",
			Help:      "Total number of match requests by outcome",
		},
		[]string{"outcome"},
	)
	m.matchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "soulsync",
			Name:      "match_duration_seconds",
			Help:      "Match request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	m.fallbackMatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soulsync",
			Name:      "fallback_matches_total",
			Help:      "Total number of random fallback matches served",
		},
	)
	m.answersRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soulsync",
			Name:      "answers_recorded_total",
			Help:      "Total number of journey answers appended to the ledger",
		},
	)
	m.refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soulsync",
			Name:      "profile_refreshes_total",
			Help:      "Total number of profile embedding refresh attempts by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		m.matchRequests,
		m.matchDuration,
		m.fallbackMatches,
		m.answersRecorded,
		m.refreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordMatch records one match request.
func (m *Metrics) RecordMatch(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.matchRequests.WithLabelValues(outcome).Inc()
	m.matchDuration.Observe(latency.Seconds())
	if outcome == OutcomeFallback {
		m.fallbackMatches.Inc()
	}
}

// RecordAnswer records one ledger append.
func (m *Metrics) RecordAnswer() {
	if m == nil {
		return
	}
	m.answersRecorded.Inc()
}

// RecordRefresh records one profile refresh attempt.
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
