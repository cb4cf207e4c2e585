package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotagate"

// PrometheusRecorder implements Recorder on a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	decisionsTotal      *prometheus.CounterVec
	decisionDuration    *prometheus.HistogramVec
	usageIncrements     *prometheus.CounterVec
	tokensMinted        *prometheus.CounterVec
	tokenCacheLookups   *prometheus.CounterVec
	entitlementsPending prometheus.Counter
	reconcileTotal      *prometheus.CounterVec

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// NewPrometheus registers all collectors on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of access decisions",
			},
			[]string{"outcome", "reason", "tier"},
		),
		decisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_duration_seconds",
				Help:      "Access decision latency distribution",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"outcome"},
		),
		usageIncrements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_increments_total",
				Help:      "Conditional usage increments by scope and result",
			},
			[]string{"scope", "applied"},
		),
		tokensMinted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_minted_total",
				Help:      "Token mint attempts by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		tokenCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_cache_lookups_total",
				Help:      "Token resolution cache lookups",
			},
			[]string{"result"},
		),
		entitlementsPending: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_pending_total",
				Help:      "Signups whose built-in entitlement was deferred",
			},
		),
		reconcileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_reconciled_total",
				Help:      "Pending entitlement retries by status",
			},
			[]string{"status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// Registry returns the registry backing this recorder.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveDecision records one decision.
func (p *PrometheusRecorder) ObserveDecision(outcome, reason, tier string, duration time.Duration) {
	if reason == "" {
		reason = "none"
	}
	if tier == "" {
		tier = "unknown"
	}
	p.decisionsTotal.WithLabelValues(outcome, reason, tier).Inc()
	p.decisionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncUsageIncrement records one conditional increment.
func (p *PrometheusRecorder) IncUsageIncrement(scope string, applied bool) {
	p.usageIncrements.WithLabelValues(scope, strconv.FormatBool(applied)).Inc()
}

// IncTokenMinted records one mint attempt.
func (p *PrometheusRecorder) IncTokenMinted(strategy, result string) {
	p.tokensMinted.WithLabelValues(strategy, result).Inc()
}

// IncTokenCacheHit records a cache hit.
func (p *PrometheusRecorder) IncTokenCacheHit() {
	p.tokenCacheLookups.WithLabelValues("hit").Inc()
}

// IncTokenCacheMiss records a cache miss.
func (p *PrometheusRecorder) IncTokenCacheMiss() {
	p.tokenCacheLookups.WithLabelValues("miss").Inc()
}

// IncEntitlementPending records a deferred signup entitlement.
func (p *PrometheusRecorder) IncEntitlementPending() {
	p.entitlementsPending.Inc()
}

// IncEntitlementReconciled records one reconcile attempt.
func (p *PrometheusRecorder) IncEntitlementReconciled(status string) {
	p.reconcileTotal.WithLabelValues(status).Inc()
}
