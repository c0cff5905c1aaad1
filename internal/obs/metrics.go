// In file: internal/obs/metrics.go
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus collector set, registered once at
// startup and threaded through the pipeline, backend registry, and command
// service. Grounded on haasonsaas-nexus's observability.Metrics (one
// CounterVec/HistogramVec/GaugeVec per concern, a thin Record* method per
// metric), scaled down to this proxy's domain: wire-capture throughput,
// command execution, failover retries, and backend latency rather than a
// chat-bot's channel/webhook/queue metrics.
type Metrics struct {
	// HTTPRequests counts inbound requests by route and status.
	// Labels: route, status_code
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration measures end-to-end request latency in seconds.
	// Labels: route
	HTTPRequestDuration *prometheus.HistogramVec

	// BackendRequestDuration measures one connector call's latency.
	// Labels: backend, model
	BackendRequestDuration *prometheus.HistogramVec

	// BackendRequests counts connector calls by backend, model, and outcome.
	// Labels: backend, model, status (success|error)
	BackendRequests *prometheus.CounterVec

	// CommandExecutions counts command-handler invocations.
	// Labels: command, status (success|error)
	CommandExecutions *prometheus.CounterVec

	// FailoverRetries counts failover-driven retries.
	// Labels: route, backend
	FailoverRetries *prometheus.CounterVec

	// WireCaptureEntries counts wire-capture entries written.
	// Labels: direction
	WireCaptureEntries *prometheus.CounterVec

	// ActiveSessions is a gauge of currently tracked sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics constructs and registers every collector against Prometheus's
// default registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmproxy_http_requests_total",
				Help: "Total inbound HTTP requests by route and status code",
			},
			[]string{"route", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmproxy_http_request_duration_seconds",
				Help:    "Duration of inbound HTTP requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"route"},
		),

		BackendRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmproxy_backend_request_duration_seconds",
				Help:    "Duration of backend connector calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "model"},
		),

		BackendRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmproxy_backend_requests_total",
				Help: "Total backend connector calls by backend, model, and outcome",
			},
			[]string{"backend", "model", "status"},
		),

		CommandExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmproxy_command_executions_total",
				Help: "Total command-handler invocations by command name and outcome",
			},
			[]string{"command", "status"},
		),

		FailoverRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmproxy_failover_retries_total",
				Help: "Total failover-driven retries by route and backend",
			},
			[]string{"route", "backend"},
		),

		WireCaptureEntries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmproxy_wire_capture_entries_total",
				Help: "Total wire-capture entries written by direction",
			},
			[]string{"direction"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "llmproxy_active_sessions",
				Help: "Current number of tracked sessions",
			},
		),
	}
}

// RecordHTTPRequest records one completed inbound HTTP request.
func (m *Metrics) RecordHTTPRequest(route, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordBackendRequest records one completed connector call.
func (m *Metrics) RecordBackendRequest(backendName, model, status string, durationSeconds float64) {
	m.BackendRequests.WithLabelValues(backendName, model, status).Inc()
	m.BackendRequestDuration.WithLabelValues(backendName, model).Observe(durationSeconds)
}

// RecordCommandExecution records one command-handler invocation.
func (m *Metrics) RecordCommandExecution(command, status string) {
	m.CommandExecutions.WithLabelValues(command, status).Inc()
}

// RecordFailoverRetry records one failover-driven retry.
func (m *Metrics) RecordFailoverRetry(route, backendName string) {
	m.FailoverRetries.WithLabelValues(route, backendName).Inc()
}

// RecordWireCaptureEntry records one wire-capture entry write.
func (m *Metrics) RecordWireCaptureEntry(direction string) {
	m.WireCaptureEntries.WithLabelValues(direction).Inc()
}
