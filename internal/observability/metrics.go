package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpErrors      *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	analyticsTiming *prometheus.HistogramVec
	purgedLogs      prometheus.Counter
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP responses rendered from domain errors, by error code.",
		}, []string{"method", "route", "code"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_escalations_total",
			Help: "SLA checks by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Notification delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
		analyticsTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_analytics_report_duration_seconds",
			Help:    "Time spent building analytics reports.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		purgedLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_activity_logs_purged_total",
			Help: "Activity log entries removed by retention.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpErrors,
		m.escalations,
		m.notifications,
		m.analyticsTiming,
		m.purgedLogs,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError counts a rendered domain error.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, route, code).Inc()
}

// RecordEscalation counts one SLA check outcome.
func (m *Metrics) RecordEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a delivery attempt.
func (m *Metrics) ObserveNotification(channel string, delivered bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !delivered {
		result = "failed"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// ObserveAnalytics records how long a report took.
func (m *Metrics) ObserveAnalytics(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.analyticsTiming.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordPurge adds removed activity log entries.
func (m *Metrics) RecordPurge(removed int64) {
	if m == nil || removed <= 0 {
		return
	}
	m.purgedLogs.Add(float64(removed))
}

// WatchQueueDepth exports the length reported by depth as
// helpdesk_notification_queue_depth. A failed read reports -1.
func (m *Metrics) WatchQueueDepth(depth func() (int64, error)) {
	if m == nil || depth == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "helpdesk_notification_queue_depth",
		Help: "Messages waiting in the notification queue.",
	}, func() float64 {
		n, err := depth()
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}
