package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors agentkit exports, grouped
// the way the teacher's Metrics struct groups per-subsystem vectors.
type Metrics struct {
	// SessionsActive tracks currently-non-terminal sessions by mode.
	SessionsActive *prometheus.GaugeVec

	// SessionTurns counts completed turns by session mode and outcome.
	SessionTurns *prometheus.CounterVec

	// SessionDuration measures session lifetime in seconds from CREATED
	// to a terminal state.
	SessionDuration *prometheus.HistogramVec

	// ToolExecutions counts tool invocations by tool name and status.
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// HookExecutions counts hook invocations by kind and outcome.
	HookExecutions *prometheus.CounterVec

	// PolicyDecisions counts policy evaluations by result and cache hit.
	PolicyDecisions *prometheus.CounterVec

	// CostUSD accumulates estimated spend by model.
	CostUSD *prometheus.CounterVec

	// TaskExecutions counts task firings by trigger and outcome.
	TaskExecutions *prometheus.CounterVec

	// ArchiveDuration measures archive creation latency in seconds.
	ArchiveDuration *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics registers and returns agentkit's Prometheus collectors
// against the default registry. Collectors can only be registered once
// per process, so repeat calls (one per app.Build in a test binary,
// for instance) return the same instance instead of panicking on a
// duplicate registration.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = buildMetrics()
	})
	return metricsInstance
}

func buildMetrics() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentkit",
			Name:      "sessions_active",
			Help:      "Number of sessions not yet in a terminal state.",
		}, []string{"mode"}),

		SessionTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "session_turns_total",
			Help:      "Completed turns by session mode and outcome.",
		}, []string{"mode", "outcome"}),

		SessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentkit",
			Name:      "session_duration_seconds",
			Help:      "Session lifetime from creation to a terminal state.",
			Buckets:   []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"mode"}),

		ToolExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by tool name and status.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentkit",
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		HookExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "hook_executions_total",
			Help:      "Hook invocations by kind and outcome.",
		}, []string{"hook_kind", "outcome"}),

		PolicyDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "policy_decisions_total",
			Help:      "Policy evaluations by result and cache status.",
		}, []string{"result", "cache"}),

		CostUSD: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "cost_usd_total",
			Help:      "Estimated spend by model.",
		}, []string{"model"}),

		TaskExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentkit",
			Name:      "task_executions_total",
			Help:      "Task firings by trigger and outcome.",
		}, []string{"trigger", "outcome"}),

		ArchiveDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentkit",
			Name:      "archive_duration_seconds",
			Help:      "Workdir archive creation latency.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"compression"}),
	}
}
