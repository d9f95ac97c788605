package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request pipeline metrics, exposed on /metrics.
var (
	// RequestsTotal counts streaming requests by endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_requests_total",
		Help: "Streaming requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// RequestDuration tracks end-to-end request latency by endpoint.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_request_duration_seconds",
		Help:    "End-to-end streaming request duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"endpoint"})

	// TokensStreamed counts token events delivered to clients.
	TokensStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_tokens_streamed_total",
		Help: "Token events delivered to clients.",
	})

	// ToolCalls counts tool executions by tool name and outcome
	// (ok, error, timeout, not_allowed).
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_tool_calls_total",
		Help: "Tool executions by name and outcome.",
	}, []string{"tool", "outcome"})

	// SQLRejected counts SQL candidates rejected by the validator, by reason.
	SQLRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_sql_rejected_total",
		Help: "SQL candidates rejected by the validator, by reason.",
	}, []string{"reason"})

	// RouteDecisions counts planner outcomes by route.
	RouteDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_route_decisions_total",
		Help: "Planner route decisions.",
	}, []string{"route"})
)
