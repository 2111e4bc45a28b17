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
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// AgentRunsTotal counts agent runs by how they terminated.
	AgentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_runs_total",
			Help: "Total agent runs by outcome",
		},
		[]string{"outcome"},
	)

	// AgentIterations tracks how many model turns a run needed.
	AgentIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_iterations",
			Help:    "Model turns per agent run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// LLMRequestDuration tracks inference call latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ToolInvocationsTotal counts dispatched tool calls.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "Total tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages stored.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages stored",
		},
		[]string{"role"},
	)

	// EventsPublishedTotal counts run events handed to the event backend.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Agent run events published",
		},
		[]string{"backend", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordLLMRequest records metrics for one inference call.
func RecordLLMRequest(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordAgentRun records the outcome and depth of an agent run.
func RecordAgentRun(outcome string, iterations int) {
	AgentRunsTotal.WithLabelValues(outcome).Inc()
	AgentIterations.Observe(float64(iterations))
}

// RecordToolInvocation records a single dispatched tool call.
func RecordToolInvocation(tool string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	ToolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordEventPublish records an attempt to publish a run event.
func RecordEventPublish(backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(backend, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
