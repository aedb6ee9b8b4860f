// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WSConnectionsActive tracks live WebSocket connections across all sessions.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	// SessionsTotal counts session lifecycle transitions by resulting status.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Session lifecycle transitions by resulting status",
		},
		[]string{"status"},
	)

	// MessagesTotal counts persisted chat messages by participant type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total chat messages persisted",
		},
		[]string{"participant_type"},
	)

	// AgentResponsesTotal counts AI generation outcomes by provider.
	AgentResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_responses_total",
			Help: "AI agent generation outcomes",
		},
		[]string{"provider", "status"},
	)

	// AgentGenerateDuration tracks AI response generation duration.
	AgentGenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_generate_duration_seconds",
			Help:    "AI agent response generation duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	// TurnDuration tracks how long a full turn-taking pass takes per message.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Duration of one turn-taking pass over all AI participants",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// JournalPublishFailures counts failed journal writes (non-fatal).
	JournalPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_publish_failures_total",
			Help: "Failed JetStream journal publishes",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAgentResponse records metrics for one AI generation.
func RecordAgentResponse(provider, status string, duration float64) {
	AgentResponsesTotal.WithLabelValues(provider, status).Inc()
	AgentGenerateDuration.WithLabelValues(provider).Observe(duration)
}
