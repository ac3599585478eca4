// Package metrics exposes Prometheus instrumentation for the runtime:
// turn outcomes, agent executions, tool invocations, LLM calls, and push
// fabric health. Collectors register on the default registry at init and
// are served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazi_turns_total",
			Help: "Total number of chat turns by terminal status",
		},
		[]string{"status"},
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kazi_turn_duration_seconds",
			Help:    "Wall-clock duration of chat turns in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	agentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazi_agent_executions_total",
			Help: "Total number of agent executions by agent and status",
		},
		[]string{"agent", "status"},
	)

	toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazi_tool_invocations_total",
			Help: "Total number of tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kazi_tool_invocation_duration_seconds",
			Help:    "Duration of tool invocations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"tool"},
	)

	llmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazi_llm_requests_total",
			Help: "Total number of LLM requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	pushSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kazi_push_subscriptions",
			Help: "Current number of live push subscriptions",
		},
	)

	pushDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kazi_push_drops_total",
			Help: "Total number of subscriptions disconnected for backpressure",
		},
	)
)

// RecordTurn records one completed chat turn.
func RecordTurn(status string, durationSeconds float64) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDuration.Observe(durationSeconds)
}

// RecordAgentExecution records one agent execution reaching a terminal
// status.
func RecordAgentExecution(agent, status string) {
	agentExecutions.WithLabelValues(agent, status).Inc()
}

// RecordToolInvocation records one tool call.
func RecordToolInvocation(tool, status string, durationSeconds float64) {
	toolInvocations.WithLabelValues(tool, status).Inc()
	toolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordLLMRequest records one LLM completion request.
func RecordLLMRequest(provider, status string) {
	llmRequests.WithLabelValues(provider, status).Inc()
}

// SubscriptionOpened tracks a push subscription coming up.
func SubscriptionOpened() {
	pushSubscriptions.Inc()
}

// SubscriptionClosed tracks a push subscription going away.
func SubscriptionClosed() {
	pushSubscriptions.Dec()
}

// SubscriptionDropped counts a backpressure disconnect.
func SubscriptionDropped() {
	pushDrops.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
