// Package metrics exposes Prometheus instruments for the credence pipeline.
// Every method is safe on a nil *Metrics, so components may run without
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/ppiankov/credence/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "credence"

// Request outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeCached      = "cached"
	OutcomeIncomplete  = "incomplete"
	OutcomeRateLimited = "rate_limited"
	OutcomeInputError  = "input_error"
	OutcomeUnavailable = "upstream_unavailable"
	OutcomeCanceled    = "canceled"
)

// Metrics holds all pipeline instruments
type Metrics struct {
	gatherer prometheus.Gatherer

	RequestsTotal      *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	RateLimitDenials   *prometheus.CounterVec
	SearchGroups       *prometheus.CounterVec
	SearchGroupSeconds *prometheus.HistogramVec
	OracleCalls        *prometheus.CounterVec
	InFlight           prometheus.Gauge
}

// New creates and registers the instruments on reg. A nil reg gets a fresh
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Checks handled, by input kind and outcome",
		}, []string{"kind", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Report cache lookups by result",
		}, []string{"result"}),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Submissions rejected by the admission limiter",
		}, []string{"kind"}),
		SearchGroups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_groups_total",
			Help:      "Search groups by group and terminal status",
		}, []string{"group", "status"}),
		SearchGroupSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_group_duration_seconds",
			Help:      "Time for a search group including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"group"}),
		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Reasoning oracle calls by purpose and status",
		}, []string{"purpose", "status"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Checks currently being processed",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest counts a finished check.
func (m *Metrics) ObserveRequest(kind, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveCache counts a report cache lookup ("hit", "miss" or "shared").
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveDenial counts an admission denial.
func (m *Metrics) ObserveDenial(kind string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(kind).Inc()
}

// ObserveSearchGroup records a finished search group. Per-source groups are
// reported under "source" to keep label cardinality bounded.
func (m *Metrics) ObserveSearchGroup(group model.EvidenceGroup, status model.GroupStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SearchGroups.WithLabelValues(string(group), string(status)).Inc()
	m.SearchGroupSeconds.WithLabelValues(string(group)).Observe(elapsed.Seconds())
}

// ObserveOracle counts an oracle call.
func (m *Metrics) ObserveOracle(purpose, status string) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(purpose, status).Inc()
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement.
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
