// Package metrics provides Prometheus metrics for the readiness service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace         string
	subsystem         string
	latencyBuckets    []float64
	scoreBuckets      []float64
	generationBuckets []float64
	enabled           bool
	registry          prometheus.Registerer

	// Scoring
	scoresComputed *prometheus.CounterVec
	scoringLatency prometheus.Histogram
	overallScore   prometheus.Histogram

	// Retrieval
	retrievalQueries prometheus.Counter
	retrievalMisses  prometheus.Counter

	// Text generation collaborator
	generationAttempts *prometheus.CounterVec
	generationRetries  prometheus.Counter
	generationLatency  prometheus.Histogram
	repairOutcomes     *prometheus.CounterVec
	fallbacks          prometheus.Counter

	// Cache
	cacheLookups *prometheus.CounterVec
	cacheEntries prometheus.Gauge

	// Leaderboard
	leaderboardUpdates prometheus.Counter
	institutions       prometheus.Gauge

	// Queue / workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "rankready",
		subsystem:         "readiness",
		latencyBuckets:    prometheus.DefBuckets,
		scoreBuckets:      prometheus.LinearBuckets(10, 10, 10),
		generationBuckets: prometheus.ExponentialBuckets(50, 2, 10),
		enabled:           true,
		registry:          prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.scoresComputed = auto.NewCounterVec(m.counterOpts("scores_computed_total",
		"Total number of readiness scorings by origin (api, stored, batch)"), []string{"origin"})
	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds",
		"Scoring engine latency in milliseconds", m.latencyBuckets))
	m.overallScore = auto.NewHistogram(m.histogramOpts("overall_score",
		"Distribution of computed overall readiness scores", m.scoreBuckets))

	m.retrievalQueries = auto.NewCounter(m.counterOpts("retrieval_queries_total",
		"Total number of documentation retrieval queries"))
	m.retrievalMisses = auto.NewCounter(m.counterOpts("retrieval_misses_total",
		"Total number of retrieval queries that matched no document"))

	m.generationAttempts = auto.NewCounterVec(m.counterOpts("generation_attempts_total",
		"Text generation attempts by outcome"), []string{"outcome"})
	m.generationRetries = auto.NewCounter(m.counterOpts("generation_retries_total",
		"Total number of text generation retries after transient failures"))
	m.generationLatency = auto.NewHistogram(m.histogramOpts("generation_latency_milliseconds",
		"Text generation call latency in milliseconds", m.generationBuckets))
	m.repairOutcomes = auto.NewCounterVec(m.counterOpts("json_repair_total",
		"Structured output decoding outcomes (clean, repaired, failed)"), []string{"outcome"})
	m.fallbacks = auto.NewCounter(m.counterOpts("fallback_recommendations_total",
		"Total number of times deterministic fallback recommendations were served"))

	m.cacheLookups = auto.NewCounterVec(m.counterOpts("cache_lookups_total",
		"Cache lookups by result (hit, miss)"), []string{"result"})
	m.cacheEntries = auto.NewGauge(m.gaugeOpts("cache_entries",
		"Current number of cached entries"))

	m.leaderboardUpdates = auto.NewCounter(m.counterOpts("leaderboard_updates_total",
		"Total number of leaderboard upserts"))
	m.institutions = auto.NewGauge(m.gaugeOpts("institutions",
		"Number of institutions on the current leaderboard"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current number of pending recommendation jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum number of pending recommendation jobs"))
	m.queueEnqueue = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of recommendation jobs enqueued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total",
		"Enqueue failures by reason"), []string{"reason"})
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Number of recommendation workers"))
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Recommendation job processing latency in milliseconds", prometheus.ExponentialBuckets(1, 4, 10)))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of failed recommendation jobs"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes",
		"Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds",
		"Average GC pause in milliseconds", m.latencyBuckets))
}

// Scoring

func RecordScoreComputed(origin string, overall int, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.scoresComputed.WithLabelValues(origin).Inc()
	globalManager.scoringLatency.Observe(latencyMs)
	globalManager.overallScore.Observe(float64(overall))
}

// Retrieval

func RecordRetrieval(matched int) {
	if !globalManager.enabled {
		return
	}
	globalManager.retrievalQueries.Inc()
	if matched == 0 {
		globalManager.retrievalMisses.Inc()
	}
}

// Generation

func RecordGenerationAttempt(outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.generationAttempts.WithLabelValues(outcome).Inc()
	globalManager.generationLatency.Observe(latencyMs)
}

func RecordGenerationRetry() {
	if globalManager.enabled {
		globalManager.generationRetries.Inc()
	}
}

func RecordRepairOutcome(outcome string) {
	if globalManager.enabled {
		globalManager.repairOutcomes.WithLabelValues(outcome).Inc()
	}
}

func RecordFallback() {
	if globalManager.enabled {
		globalManager.fallbacks.Inc()
	}
}

// Cache

func RecordCacheLookup(hit bool) {
	if !globalManager.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

func UpdateCacheEntries(n int) {
	if globalManager.enabled {
		globalManager.cacheEntries.Set(float64(n))
	}
}

// Leaderboard

func RecordLeaderboardUpdate() {
	if globalManager.enabled {
		globalManager.leaderboardUpdates.Inc()
	}
}

func UpdateInstitutions(count int) {
	if globalManager.enabled {
		globalManager.institutions.Set(float64(count))
	}
}

// Queue / workers

func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueue.Inc()
	}
}

func RecordQueueEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
	}
}

func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerLatency.Observe(latencyMs)
	}
}

func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrors.Inc()
	}
}

// HTTP

func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System

func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
