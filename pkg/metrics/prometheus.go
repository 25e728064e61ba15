// Package metrics provides Prometheus metrics for the tierboard service.
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

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Intake
	submissionsAccepted prometheus.Counter
	intakeRejections    *prometheus.CounterVec
	messagesDuplicate   prometheus.Counter

	// Review
	transitions    *prometheus.CounterVec
	reviewFailures *prometheus.CounterVec

	// Ratings
	ratingsTotal      prometheus.Gauge
	pendingTotal      prometheus.Gauge
	ratingsPerTier    *prometheus.GaugeVec
	leaderboardRender prometheus.Counter

	// Store
	storeTxLatency *prometheus.HistogramVec
	storeTxErrors  *prometheus.CounterVec
	prunedTotal    prometheus.Counter

	// Hooks
	hookRuns        *prometheus.CounterVec
	hookLatency     *prometheus.HistogramVec
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueue    prometheus.Counter
	queueDequeue    prometheus.Counter
	queueOverflow   prometheus.Counter
	workerCount     prometheus.Gauge
	workerProcessed prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

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
		namespace:        "tierboard",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.submissionsAccepted = m.counter("submissions_accepted_total", "Submissions accepted by the intake gate")
	m.intakeRejections = m.counterVec("intake_rejections_total", "Submissions rejected by the intake gate", "reason")
	m.messagesDuplicate = m.counter("messages_duplicate_total", "Inbound platform messages delivered more than once")

	m.transitions = m.counterVec("transitions_total", "Submission state transitions by resulting status", "status")
	m.reviewFailures = m.counterVec("review_failures_total", "Moderator actions refused by the state machine", "kind")

	m.ratingsTotal = m.gauge("ratings_total", "Number of published ratings")
	m.pendingTotal = m.gauge("pending_submissions", "Number of submissions awaiting review")
	m.ratingsPerTier = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "ratings_per_tier", Help: "Published ratings per tier",
		ConstLabels: m.customLabels,
	}, []string{"tier"})
	m.leaderboardRender = m.counter("leaderboard_renders_total", "Leaderboard projections rendered")

	m.storeTxLatency = m.histogramVec("store_tx_milliseconds", "Repository transaction latency in milliseconds", "mode")
	m.storeTxErrors = m.counterVec("store_tx_errors_total", "Repository transactions that failed or rolled back", "mode")
	m.prunedTotal = m.counter("submissions_pruned_total", "Terminal submissions removed by retention pruning")

	m.hookRuns = m.counterVec("hook_runs_total", "Post-commit hook executions by hook and result", "hook", "result")
	m.hookLatency = m.histogramVec("hook_latency_milliseconds", "Post-commit hook latency in milliseconds", "hook")
	m.queueSize = m.gauge("hook_queue_size", "Hook batches waiting in the queue")
	m.queueCapacity = m.gauge("hook_queue_capacity", "Hook queue capacity")
	m.queueEnqueue = m.counter("hook_queue_enqueued_total", "Hook batches enqueued")
	m.queueDequeue = m.counter("hook_queue_dequeued_total", "Hook batches dequeued")
	m.queueOverflow = m.counter("hook_queue_overflow_total", "Hook batches run inline because the queue was full or closed")
	m.workerCount = m.gauge("hook_workers", "Number of hook workers")
	m.workerProcessed = m.counter("hook_batches_processed_total", "Hook batches executed by workers")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap memory in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "system_gc_pause_milliseconds",
		Help: "Average GC pause in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often store-derived gauges should be recomputed.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

// RecordSubmissionAccepted counts an accepted submission.
func RecordSubmissionAccepted() {
	if globalManager.enabled {
		globalManager.submissionsAccepted.Inc()
	}
}

// RecordIntakeRejection counts an intake rejection by reason.
func RecordIntakeRejection(reason string) {
	if globalManager.enabled {
		globalManager.intakeRejections.WithLabelValues(reason).Inc()
	}
}

// RecordMessageDuplicate counts a redelivered platform message.
func RecordMessageDuplicate() {
	if globalManager.enabled {
		globalManager.messagesDuplicate.Inc()
	}
}

// RecordTransition counts a submission transition into status.
func RecordTransition(status string) {
	if globalManager.enabled {
		globalManager.transitions.WithLabelValues(status).Inc()
	}
}

// RecordReviewFailure counts a refused moderator action.
func RecordReviewFailure(kind string) {
	if globalManager.enabled {
		globalManager.reviewFailures.WithLabelValues(kind).Inc()
	}
}

// UpdateRatingsTotal sets the published rating count.
func UpdateRatingsTotal(count int) {
	if globalManager.enabled {
		globalManager.ratingsTotal.Set(float64(count))
	}
}

// UpdatePendingTotal sets the pending submission count.
func UpdatePendingTotal(count int) {
	if globalManager.enabled {
		globalManager.pendingTotal.Set(float64(count))
	}
}

// UpdateRatingsPerTier sets the rating count of one tier.
func UpdateRatingsPerTier(tier string, count int) {
	if globalManager.enabled {
		globalManager.ratingsPerTier.WithLabelValues(tier).Set(float64(count))
	}
}

// RecordLeaderboardRender counts a leaderboard projection.
func RecordLeaderboardRender() {
	if globalManager.enabled {
		globalManager.leaderboardRender.Inc()
	}
}

// RecordStoreTx records a repository transaction latency; failed marks a rollback.
func RecordStoreTx(mode string, latencyMs float64, failed bool) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeTxLatency.WithLabelValues(mode).Observe(latencyMs)
	if failed {
		globalManager.storeTxErrors.WithLabelValues(mode).Inc()
	}
}

// RecordPruned counts pruned submissions.
func RecordPruned(count int) {
	if globalManager.enabled && count > 0 {
		globalManager.prunedTotal.Add(float64(count))
	}
}

// RecordHookRun records one hook execution.
func RecordHookRun(hook string, ok bool, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	globalManager.hookRuns.WithLabelValues(hook, result).Inc()
	globalManager.hookLatency.WithLabelValues(hook).Observe(latencyMs)
}

// UpdateQueueSize sets the current hook queue length.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the hook queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an enqueued batch.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueue.Inc()
	}
}

// RecordQueueDequeue counts a dequeued batch.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeue.Inc()
	}
}

// RecordQueueOverflow counts a batch that bypassed the queue.
func RecordQueueOverflow() {
	if globalManager.enabled {
		globalManager.queueOverflow.Inc()
	}
}

// UpdateWorkerCount sets the number of hook workers.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessed counts a batch executed by a worker.
func RecordWorkerProcessed() {
	if globalManager.enabled {
		globalManager.workerProcessed.Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
