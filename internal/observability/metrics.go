// Package observability provides Prometheus metrics and correlation-id
// context helpers for the orchestration core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the counters and histograms the core reports.
//
// All metrics register with Prometheus's default registry and surface at
// the /metrics endpoint.
type Metrics struct {
	// GatewayRequestDuration measures LLM gateway call latency in seconds.
	// Labels: backend (anthropic|openai), mode
	GatewayRequestDuration *prometheus.HistogramVec

	// GatewayRequestCounter counts gateway calls.
	// Labels: backend, mode, status (success|error)
	GatewayRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: provider, tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool invocation time in seconds.
	// Labels: provider, tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalCounter counts approval outcomes.
	// Labels: outcome (approved|edited|rejected|timeout)
	ApprovalCounter *prometheus.CounterVec

	// AgentSteps measures steps consumed per agent run.
	AgentSteps prometheus.Histogram

	// ActiveSessions tracks sessions with a registered event sink.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		GatewayRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_gateway_request_duration_seconds",
				Help:    "LLM gateway call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend", "mode"},
		),
		GatewayRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_gateway_requests_total",
				Help: "LLM gateway calls by backend, mode, and status",
			},
			[]string{"backend", "mode", "status"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_tool_executions_total",
				Help: "Tool invocations by provider, tool, and status",
			},
			[]string{"provider", "tool", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_tool_execution_duration_seconds",
				Help:    "Tool invocation time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"provider", "tool"},
		),
		ApprovalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_approvals_total",
				Help: "Approval outcomes",
			},
			[]string{"outcome"},
		),
		AgentSteps: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parley_agent_steps",
				Help:    "Steps consumed per agent run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 30},
			},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "parley_active_sessions",
				Help: "Sessions with a registered event sink",
			},
		),
	}
}
