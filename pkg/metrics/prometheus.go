// Package metrics provides Prometheus metrics for the monthly ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline metrics
	uploadsProcessed  prometheus.Counter
	uploadsRejected   *prometheus.CounterVec
	rowsIngested      prometheus.Counter
	pointsAwarded     prometheus.Counter
	pipelineLatency   prometheus.Histogram
	rankingsPublished prometheus.Counter
	rankingSize       prometheus.Gauge

	// Store and sink metrics
	storeCallDuration *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	sinkCallDuration  *prometheus.HistogramVec
	sinkErrors        *prometheus.CounterVec
	retryAttempts     *prometheus.CounterVec

	// Queue and worker metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueDequeue       prometheus.Counter
	workerCount        prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
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
		namespace:        "monthlyrank",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.uploadsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "uploads_processed_total",
		Help:      "Total number of uploads appended to the event log",
	})

	m.uploadsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "uploads_rejected_total",
		Help:      "Total number of rejected uploads by reason",
	}, []string{"reason"})

	m.rowsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_ingested_total",
		Help:      "Total number of event records appended",
	})

	m.pointsAwarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "points_awarded_total",
		Help:      "Sum of points earned across appended records",
	})

	m.pipelineLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "latency_milliseconds",
		Help:      "Upload pipeline latency in milliseconds from ingest to publish",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	m.rankingsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rankings_published_total",
		Help:      "Total number of monthly rankings published",
	})

	m.rankingSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ranking_players",
		Help:      "Number of players in the most recently computed ranking",
	})

	m.storeCallDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "call_duration_milliseconds",
		Help:      "Store call duration in milliseconds by backend and operation",
		Buckets:   m.histogramBuckets,
	}, []string{"backend", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Total number of failed store calls by backend and operation",
	}, []string{"backend", "op"})

	m.sinkCallDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "sink",
		Name:      "call_duration_milliseconds",
		Help:      "Notification sink call duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"sink"})

	m.sinkErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sink",
		Name:      "errors_total",
		Help:      "Total number of failed notification sink calls",
	}, []string{"sink"})

	m.retryAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Total number of retried external calls by component",
	}, []string{"component"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Current number of uploads waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Queue capacity",
	})

	m.queueEnqueue = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_total",
		Help:      "Total number of enqueued uploads",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_errors_total",
		Help:      "Total number of uploads refused by a full or closed queue",
	})

	m.queueDequeue = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "dequeue_total",
		Help:      "Total number of dequeued uploads",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "count",
		Help:      "Number of running pipeline workers",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "processing_latency_milliseconds",
		Help:      "Time a worker spends on one job in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Total number of jobs that finished with an error",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordUploadProcessed records one appended upload with its row count and points.
func RecordUploadProcessed(rows, points int) {
	globalManager.uploadsProcessed.Inc()
	globalManager.rowsIngested.Add(float64(rows))
	globalManager.pointsAwarded.Add(float64(points))
}

// RecordUploadRejected increments the rejected uploads counter for reason.
func RecordUploadRejected(reason string) {
	globalManager.uploadsRejected.WithLabelValues(reason).Inc()
}

// RecordPipelineLatency records end-to-end pipeline latency.
func RecordPipelineLatency(d time.Duration) {
	globalManager.pipelineLatency.Observe(ms(d))
}

// RecordRankingPublished increments the published rankings counter.
func RecordRankingPublished() {
	globalManager.rankingsPublished.Inc()
}

// UpdateRankingSize sets the number of players in the latest ranking.
func UpdateRankingSize(n int) {
	globalManager.rankingSize.Set(float64(n))
}

// RecordStoreCall records the duration of a store call.
func RecordStoreCall(backend, op string, d time.Duration) {
	globalManager.storeCallDuration.WithLabelValues(backend, op).Observe(ms(d))
}

// RecordStoreError increments the store errors counter.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordSinkCall records the duration of a notification sink call.
func RecordSinkCall(sink string, d time.Duration) {
	globalManager.sinkCallDuration.WithLabelValues(sink).Observe(ms(d))
}

// RecordSinkError increments the sink errors counter.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// RecordRetry increments the retry counter for component.
func RecordRetry(component string) {
	globalManager.retryAttempts.WithLabelValues(component).Inc()
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the time spent on one job.
func RecordWorkerProcessingLatency(d time.Duration) {
	globalManager.workerLatency.Observe(ms(d))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, d time.Duration) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms(d))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
