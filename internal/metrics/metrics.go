package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glucotrack"

// Metrics owns a private registry so tests and multiple app instances never
// collide on the global one.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	alertsFired        *prometheus.CounterVec
	reminderActions    *prometheus.CounterVec
	storageErrors      *prometheus.CounterVec
	recordsCreated     *prometheus.CounterVec
	predictionRequests *prometheus.CounterVec
	predictionLatency  prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	activeConnections  prometheus.Gauge

	connections atomic.Int64

	mu     sync.Mutex
	totals map[string]int64
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		totals:    make(map[string]int64),

		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Reminder alerts raised, by kind (due or snooze)",
		}, []string{"kind"}),
		reminderActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_actions_total",
			Help:      "Reminder state changes, by action",
		}, []string{"action"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Device storage failures, by operation",
		}, []string{"op"}),
		recordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Tracking records created, by table",
		}, []string{"table"}),
		predictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_requests_total",
			Help:      "Calls to the glucose prediction service, by outcome",
		}, []string{"outcome"}),
		predictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Latency of prediction service calls",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests, by method and status class",
		}, []string{"method", "class"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_active_connections",
			Help:      "Open websocket alert subscribers",
		}),
	}

	m.registry.MustRegister(
		m.alertsFired,
		m.reminderActions,
		m.storageErrors,
		m.recordsCreated,
		m.predictionRequests,
		m.predictionLatency,
		m.httpRequests,
		m.activeConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) bump(key string) {
	m.mu.Lock()
	m.totals[key]++
	m.mu.Unlock()
}

func (m *Metrics) RecordAlert(kind string) {
	m.alertsFired.WithLabelValues(kind).Inc()
	m.bump("alerts")
}

func (m *Metrics) RecordReminderAction(action string) {
	m.reminderActions.WithLabelValues(action).Inc()
	m.bump("reminder_actions")
}

func (m *Metrics) RecordStorageError(op string) {
	m.storageErrors.WithLabelValues(op).Inc()
	m.bump("storage_errors")
}

func (m *Metrics) RecordCreated(table string) {
	m.recordsCreated.WithLabelValues(table).Inc()
	m.bump("records_created")
}

// RecordPrediction records one prediction call by outcome, e.g. ok,
// status_error or circuit_open
func (m *Metrics) RecordPrediction(outcome string, d time.Duration) {
	m.predictionRequests.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.predictionLatency.Observe(d.Seconds())
	}
	m.bump("predictions")
}

func (m *Metrics) RecordHTTPRequest(method string, status int) {
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.httpRequests.WithLabelValues(method, class).Inc()
	m.bump("http_requests")
	if status >= 500 {
		m.bump("http_failed")
	}
}

func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Set(float64(m.connections.Add(1)))
}

func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Set(float64(m.connections.Add(-1)))
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type Snapshot struct {
	Uptime            time.Duration `json:"uptime"`
	AlertsFired       int64         `json:"alerts_fired"`
	ReminderActions   int64         `json:"reminder_actions"`
	StorageErrors     int64         `json:"storage_errors"`
	RecordsCreated    int64         `json:"records_created"`
	Predictions       int64         `json:"predictions"`
	HTTPRequests      int64         `json:"http_requests"`
	HTTPFailed        int64         `json:"http_failed"`
	ActiveConnections int64         `json:"active_connections"`
	SuccessRate       float64       `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		Uptime:            time.Since(m.startTime),
		AlertsFired:       m.totals["alerts"],
		ReminderActions:   m.totals["reminder_actions"],
		StorageErrors:     m.totals["storage_errors"],
		RecordsCreated:    m.totals["records_created"],
		Predictions:       m.totals["predictions"],
		HTTPRequests:      m.totals["http_requests"],
		HTTPFailed:        m.totals["http_failed"],
		ActiveConnections: m.connections.Load(),
	}
	if s.HTTPRequests > 0 {
		s.SuccessRate = float64(s.HTTPRequests-s.HTTPFailed) / float64(s.HTTPRequests) * 100
	}
	return s
}
