package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recycle"

// PrometheusMetrics contains all Prometheus metrics for the recycling service
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Disposal metrics
	DisposalsTotal         *prometheus.CounterVec
	DisposalDuration       prometheus.Histogram
	TokensBurnedTotal      prometheus.Counter
	RewardsPaidTotal       prometheus.Counter
	ExperienceGrantedTotal prometheus.Counter
	CompensationsTotal     *prometheus.CounterVec
	StationsCreatedTotal   prometheus.Counter

	// Token ledger metrics
	TokenLedgerRequestsTotal   *prometheus.CounterVec
	TokenLedgerRequestDuration *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec
	NotificationQueueDepth    prometheus.Gauge

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics on a fresh registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		DisposalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disposals_total",
				Help:      "Total number of disposal attempts by outcome",
			},
			[]string{"status"},
		),

		DisposalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "disposal_duration_seconds",
				Help:      "Time spent executing a disposal end to end",
				Buckets:   prometheus.DefBuckets,
			},
		),

		TokensBurnedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_burned_total",
				Help:      "Total smallest units of dead tokens burned",
			},
		),

		RewardsPaidTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewards_paid_total",
				Help:      "Total reward tokens paid out of the reserve",
			},
		),

		ExperienceGrantedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "experience_points_total",
				Help:      "Total experience points recorded",
			},
		),

		CompensationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Compensating actions run after a failed disposal",
			},
			[]string{"step", "status"},
		),

		StationsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stations_created_total",
				Help:      "Total number of stations registered",
			},
		),

		TokenLedgerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_ledger_requests_total",
				Help:      "Requests made to the external token ledger",
			},
			[]string{"operation", "status"},
		),

		TokenLedgerRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_ledger_request_duration_seconds",
				Help:      "Duration of external token ledger requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "database_operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of failed notifications",
			},
			[]string{"channel", "type", "error"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_duration_seconds",
				Help:      "Duration of notification delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "type"},
		),

		NotificationQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "notification_queue_depth",
				Help:      "Notifications waiting in the in-memory queue",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "application_uptime_seconds",
				Help:      "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_health",
				Help:      "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines",
				Help:      "Number of running goroutines",
			},
		),
	}
}

// Registry returns the registry all metrics are registered on
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDisposal records a disposal outcome
func (m *PrometheusMetrics) RecordDisposal(status string, duration time.Duration) {
	m.DisposalsTotal.WithLabelValues(status).Inc()
	m.DisposalDuration.Observe(duration.Seconds())
}

// RecordDisposalAmounts adds the amounts moved by a committed disposal
func (m *PrometheusMetrics) RecordDisposalAmounts(burned, reward, xp uint64) {
	m.TokensBurnedTotal.Add(float64(burned))
	m.RewardsPaidTotal.Add(float64(reward))
	m.ExperienceGrantedTotal.Add(float64(xp))
}

// RecordCompensation records a compensating action
func (m *PrometheusMetrics) RecordCompensation(step, status string) {
	m.CompensationsTotal.WithLabelValues(step, status).Inc()
}

// RecordStationCreated records a new station
func (m *PrometheusMetrics) RecordStationCreated() {
	m.StationsCreatedTotal.Inc()
}

// RecordTokenLedgerRequest records a call to the external token ledger
func (m *PrometheusMetrics) RecordTokenLedgerRequest(operation, status string, duration time.Duration) {
	m.TokenLedgerRequestsTotal.WithLabelValues(operation, status).Inc()
	m.TokenLedgerRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
	m.NotificationDuration.WithLabelValues(channel, notificationType).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType, errorType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType, errorType).Inc()
}

// UpdateNotificationQueueDepth updates the in-memory queue depth
func (m *PrometheusMetrics) UpdateNotificationQueueDepth(depth int) {
	m.NotificationQueueDepth.Set(float64(depth))
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
