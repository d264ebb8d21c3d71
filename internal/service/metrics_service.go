package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/chronos/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec
	providerDuration *prometheus.HistogramVec
	providerTotal    *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	ledgerOps        *prometheus.CounterVec
	executions       *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	providerCallCount    uint64
	providerFailureCount uint64
	classificationCount  uint64
	executionCount       uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kv_read_seconds",
		Help:    "Latency for key-value reads",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kv_write_seconds",
		Help:    "Latency for key-value writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kv_hit_ratio",
		Help: "Ratio of key-value hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kv_hits_total",
		Help: "Total key-value hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kv_misses_total",
		Help: "Total key-value misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database maintenance queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_call_duration_seconds",
		Help:    "Duration of calendar provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	providerTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Calendar provider calls by outcome",
	}, []string{"provider", "operation", "outcome"})

	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_classifications_total",
		Help: "Intent classifications by source and outcome",
	}, []string{"source", "outcome"})

	ledgerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Action ledger operations by outcome",
	}, []string{"operation", "outcome"})

	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "command_executions_total",
		Help: "Executed commands by intent and aggregate status",
	}, []string{"intent", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, providerDuration, providerTotal, classifications, ledgerOps, executions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		providerDuration: providerDuration,
		providerTotal:    providerTotal,
		classifications:  classifications,
		ledgerOps:        ledgerOps,
		executions:       executions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records key-value hit/miss metrics and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for key-value writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveProviderCall records one calendar provider call.
func (m *MetricsService) ObserveProviderCall(provider, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	m.providerTotal.WithLabelValues(provider, operation, outcome).Inc()
	atomic.AddUint64(&m.providerCallCount, 1)
	if outcome != "ok" {
		atomic.AddUint64(&m.providerFailureCount, 1)
	}
}

// ObserveClassification counts one classification attempt.
func (m *MetricsService) ObserveClassification(source, outcome string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(source, outcome).Inc()
	atomic.AddUint64(&m.classificationCount, 1)
}

// ObserveLedgerOperation counts one ledger operation.
func (m *MetricsService) ObserveLedgerOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

// ObserveExecution counts one executed command.
func (m *MetricsService) ObserveExecution(intent, status string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(intent, status).Inc()
	atomic.AddUint64(&m.executionCount, 1)
}

// Snapshot returns aggregated metrics suitable for the stats endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		ProviderCalls:            atomic.LoadUint64(&m.providerCallCount),
		ProviderFailures:         atomic.LoadUint64(&m.providerFailureCount),
		Classifications:          atomic.LoadUint64(&m.classificationCount),
		Executions:               atomic.LoadUint64(&m.executionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
