package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tokcache/internal/structures"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncCacheInvalidations(scope string)
	ObservePersistenceDuration(duration time.Duration)
	IncGateDecision(scope, decision string)
	ObserveProviderDuration(operation string, duration time.Duration)
	IncProviderErrors(operation, kind string)
	AddReconciled(scope, outcome string, count int)
	SetCachedRecords(scope string, count int)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	cacheInvalidations  *prometheus.CounterVec
	persistenceDuration prometheus.Histogram
	gateDecisions       *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec
	providerErrors      *prometheus.CounterVec
	reconciled          *prometheus.CounterVec
	cachedRecords       *prometheus.GaugeVec
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) IncCacheInvalidations(scope string) {
	m.cacheInvalidations.WithLabelValues(scope).Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncGateDecision(scope, decision string) {
	m.gateDecisions.WithLabelValues(scope, decision).Inc()
}

func (m *MetricsProvider) ObserveProviderDuration(operation string, duration time.Duration) {
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncProviderErrors(operation, kind string) {
	m.providerErrors.WithLabelValues(operation, kind).Inc()
}

func (m *MetricsProvider) AddReconciled(scope, outcome string, count int) {
	if count <= 0 {
		return
	}
	m.reconciled.WithLabelValues(scope, outcome).Add(float64(count))
}

func (m *MetricsProvider) SetCachedRecords(scope string, count int) {
	m.cachedRecords.WithLabelValues(scope).Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokcache_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokcache_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokcache_cache_hits_total",
			Help: "Total number of response cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokcache_cache_misses_total",
			Help: "Total number of response cache misses",
		}),

		cacheInvalidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokcache_cache_invalidations_total",
			Help: "Listing cache scope invalidations by scope kind",
		}, []string{"scope"}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokcache_persistence_duration_seconds",
			Help:    "Duration of fetch state snapshot writes in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		gateDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokcache_gate_decisions_total",
			Help: "Cooldown gate decisions by scope kind and outcome",
		}, []string{"scope", "decision"}),

		providerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokcache_provider_duration_seconds",
			Help:    "Scraper provider call duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"operation"}),

		providerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokcache_provider_errors_total",
			Help: "Scraper provider failures by operation and kind",
		}, []string{"operation", "kind"}),

		reconciled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokcache_reconciled_records_total",
			Help: "Reconciled records by scope kind and outcome",
		}, []string{"scope", "outcome"}),

		cachedRecords: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tokcache_cached_records",
			Help: "Number of cached records per scope kind",
		}, []string{"scope"}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                  {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration)  {}
func (n *noopMetrics) IncCacheHits()                                     {}
func (n *noopMetrics) IncCacheMisses()                                   {}
func (n *noopMetrics) IncCacheInvalidations(_ string)                    {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)        {}
func (n *noopMetrics) IncGateDecision(_, _ string)                       {}
func (n *noopMetrics) ObserveProviderDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncProviderErrors(_, _ string)                     {}
func (n *noopMetrics) AddReconciled(_, _ string, _ int)                  {}
func (n *noopMetrics) SetCachedRecords(_ string, _ int)                  {}
