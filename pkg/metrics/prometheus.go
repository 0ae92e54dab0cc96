// Package metrics provides Prometheus metrics for the training telemetry service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the telemetry service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Ingestion metrics - envelope intake quality
	envelopesIngested  prometheus.Counter
	envelopesRejected  *prometheus.CounterVec
	sessionsCreated    prometheus.Counter
	sessionsUpdated    prometheus.Counter
	completionsOutcome prometheus.Counter

	// Resolver metrics - metadata coverage
	resolverFallbacks prometheus.Counter
	resolverMisses    prometheus.Counter

	// Aggregation metrics
	aggregationRuns    prometheus.Counter
	aggregationLatency prometheus.Histogram

	// Export metrics
	exportRows prometheus.Counter
	exportRuns prometheus.Counter

	// Store metrics
	storeUpsertLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram
	storeErrors        prometheus.Counter

	// Operational health
	totalSessions prometheus.Gauge
	totalProgress prometheus.Gauge
	bundlesLoaded prometheus.Gauge

	// HTTP performance
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByType     *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "wisetwin",
		subsystem:        "telemetry",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Ingestion metrics - envelope intake quality
	m.envelopesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "envelopes_ingested_total",
		Help:      "Total number of telemetry envelopes accepted",
	})

	m.envelopesRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "envelopes_rejected_total",
			Help:      "Total number of telemetry envelopes rejected, by reason",
		},
		[]string{"reason"},
	)

	m.sessionsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_created_total",
		Help:      "Total number of session records created by ingestion",
	})

	m.sessionsUpdated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_updated_total",
		Help:      "Total number of session records updated in place by follow-up envelopes",
	})

	m.completionsOutcome = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "completions_projected_total",
		Help:      "Total number of build completions projected to progress records",
	})

	// Resolver metrics - metadata coverage
	m.resolverFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolver_language_fallbacks_total",
		Help:      "Total number of lookups served by a fallback language instead of the requested one",
	})

	m.resolverMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolver_misses_total",
		Help:      "Total number of lookups degraded to the raw content key",
	})

	// Aggregation metrics
	m.aggregationRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_runs_total",
		Help:      "Total number of aggregation computations",
	})

	m.aggregationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_latency_milliseconds",
		Help:      "Histogram of aggregation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Export metrics
	m.exportRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_rows_total",
		Help:      "Total number of session rows written by export",
	})

	m.exportRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "export_runs_total",
		Help:      "Total number of export requests served",
	})

	// Store metrics
	m.storeUpsertLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_upsert_latency_milliseconds",
		Help:      "Session/progress upsert latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Session query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Total number of store failures",
	})

	// Operational health
	m.totalSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_sessions",
		Help:      "Total number of session records tracked",
	})

	m.totalProgress = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "total_progress_records",
		Help:      "Total number of progress records tracked",
	})

	m.bundlesLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "metadata_bundles_loaded",
		Help:      "Number of metadata bundles known to the resolver store",
	})

	// HTTP performance
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type",
		},
		[]string{"error_type", "severity"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "Current heap memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Average garbage collection pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// RecordEnvelopeIngested increments the accepted envelopes counter.
func RecordEnvelopeIngested() {
	globalManager.envelopesIngested.Inc()
}

// RecordEnvelopeRejected increments the rejected envelopes counter for a
// reason: "validation", "auth", "not_found" or "store".
func RecordEnvelopeRejected(reason string) {
	globalManager.envelopesRejected.WithLabelValues(reason).Inc()
}

// RecordSessionCreated increments the sessions created counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionUpdated increments the sessions updated counter.
func RecordSessionUpdated() {
	globalManager.sessionsUpdated.Inc()
}

// RecordCompletionProjected increments the projected completions counter.
func RecordCompletionProjected() {
	globalManager.completionsOutcome.Inc()
}

// RecordResolverFallback increments the language fallback counter.
func RecordResolverFallback() {
	globalManager.resolverFallbacks.Inc()
}

// RecordResolverMiss increments the raw-key degrade counter.
func RecordResolverMiss() {
	globalManager.resolverMisses.Inc()
}

// RecordAggregationRun increments the aggregation runs counter.
func RecordAggregationRun() {
	globalManager.aggregationRuns.Inc()
}

// RecordAggregationLatency records aggregation latency in milliseconds.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// RecordExportRows adds to the exported rows counter.
func RecordExportRows(rows int) {
	globalManager.exportRows.Add(float64(rows))
}

// RecordExportRun increments the export runs counter.
func RecordExportRun() {
	globalManager.exportRuns.Inc()
}

// RecordStoreUpsertLatency records upsert latency in milliseconds.
func RecordStoreUpsertLatency(latencyMs float64) {
	globalManager.storeUpsertLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records query latency in milliseconds.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordStoreError increments the store errors counter.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// UpdateTotalSessions sets the tracked session count.
func UpdateTotalSessions(count int) {
	globalManager.totalSessions.Set(float64(count))
}

// UpdateTotalProgressRecords sets the tracked progress record count.
func UpdateTotalProgressRecords(count int) {
	globalManager.totalProgress.Set(float64(count))
}

// UpdateBundlesLoaded sets the known metadata bundle count.
func UpdateBundlesLoaded(count int) {
	globalManager.bundlesLoaded.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the current heap memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
