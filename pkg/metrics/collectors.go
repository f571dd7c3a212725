// Package metrics defines the service's Prometheus collectors and a query
// service for aggregating per-session usage from a Prometheus server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ModelCalls counts chat-model round trips, labeled by model and stage.
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_model_calls_total",
		Help: "Chat model round trips.",
	}, []string{"model", "stage"})

	// ModelTokens counts estimated request tokens, labeled by model and stage.
	ModelTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_model_tokens_total",
		Help: "Estimated chat model request tokens.",
	}, []string{"model", "stage"})

	// ToolInvocations counts gateway tool calls, labeled by tool and outcome.
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_tool_invocations_total",
		Help: "Gateway tool invocations.",
	}, []string{"tool", "outcome"})

	// StageRuns counts stage agent executions, labeled by stage and resulting
	// status.
	StageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_stage_runs_total",
		Help: "Stage agent executions by resulting status.",
	}, []string{"stage", "status"})

	// StageDuration observes stage agent wall time in seconds.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkin_stage_duration_seconds",
		Help:    "Stage agent execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// StageTransitions counts orchestrator hops between stages.
	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_stage_transitions_total",
		Help: "Orchestrator stage transitions.",
	}, []string{"from", "to"})

	// ToolDuration observes gateway tool call wall time in seconds.
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkin_tool_duration_seconds",
		Help:    "Gateway tool invocation time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	// HTTPRequests counts inbound API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_http_requests_total",
		Help: "Inbound HTTP requests.",
	}, []string{"route", "code"})
)

// RegisterActiveSessions exposes a live session count from the store. Called
// once at startup when the store can report its size.
func RegisterActiveSessions(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "checkin_sessions_active",
		Help: "Sessions currently held in the store.",
	}, func() float64 { return float64(count()) })
}
