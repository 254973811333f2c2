package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Engine metrics
	EngineRuns      *prometheus.CounterVec
	ProposalUpdates *prometheus.CounterVec

	// Upstream metrics
	CompletionCalls    *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	CompletionRetries  *prometheus.CounterVec
	ResearchFetches    *prometheus.CounterVec

	// Quota metrics
	QuotaRejections *prometheus.CounterVec
}

// NewMetrics creates a collector with its own registry under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EngineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_runs_total",
				Help:      "Decomposition and refinement runs by outcome",
			},
			[]string{"engine", "outcome"},
		),
		ProposalUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposal_status_updates_total",
				Help:      "Proposal status writes by kind and status",
			},
			[]string{"kind", "status"},
		),
		CompletionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_calls_total",
				Help:      "Language model calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		CompletionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_duration_seconds",
				Help:      "Language model call latency including retries",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
		CompletionRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_retries_total",
				Help:      "Retries of transient language model failures",
			},
			[]string{"provider"},
		),
		ResearchFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "research_fetches_total",
				Help:      "Research source fetches by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		QuotaRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_rejections_total",
				Help:      "Requests rejected by the daily per-user limits",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.EngineRuns,
		m.ProposalUpdates,
		m.CompletionCalls,
		m.CompletionDuration,
		m.CompletionRetries,
		m.ResearchFetches,
		m.QuotaRejections,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GetRegistry returns the underlying registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordEngineRun counts a finished engine run.
func (m *Metrics) RecordEngineRun(engine, outcome string) {
	if m == nil {
		return
	}
	m.EngineRuns.WithLabelValues(engine, outcome).Inc()
}

// RecordProposalStatus counts a proposal status write.
func (m *Metrics) RecordProposalStatus(kind, status string) {
	if m == nil {
		return
	}
	m.ProposalUpdates.WithLabelValues(kind, status).Inc()
}

// RecordCompletion counts a completed model call and its latency.
func (m *Metrics) RecordCompletion(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionCalls.WithLabelValues(provider, outcome).Inc()
	m.CompletionDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCompletionRetry counts one retry of a transient model failure.
func (m *Metrics) RecordCompletionRetry(provider string) {
	if m == nil {
		return
	}
	m.CompletionRetries.WithLabelValues(provider).Inc()
}

// RecordResearchFetch counts a research source fetch.
func (m *Metrics) RecordResearchFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.ResearchFetches.WithLabelValues(source, outcome).Inc()
}

// RecordQuotaRejection counts a request refused by the daily limits.
func (m *Metrics) RecordQuotaRejection(action string) {
	if m == nil {
		return
	}
	m.QuotaRejections.WithLabelValues(action).Inc()
}
