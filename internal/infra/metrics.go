package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время выполнения задачи агентом
	TaskDuration *prometheus.HistogramVec

	// Traffic: задачи по агентам и исходам
	TasksTotal *prometheus.CounterVec

	// Tool-цикл: вызовы инструментов по исходам (ok, error, schema_invalid)
	ToolCallsTotal *prometheus.CounterVec

	// Триггеры: сработавшие правила и подавленные cooldown'ом
	TriggerFired      *prometheus.CounterVec
	TriggerSuppressed *prometheus.CounterVec

	// HITL: очередь заявок и резолюции
	ApprovalsPending  prometheus.Gauge
	ApprovalsResolved *prometheus.CounterVec

	// Supervision: рестарты инстансов (watch на restart storm)
	InstanceRestarts *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker инференса (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без реестра метрики летят в локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TaskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_task_duration_seconds",
			Help:    "Histogram of agent task execution latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"agent_type", "task_type", "status"}),

		TasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tasks_total",
			Help: "Total number of processed agent tasks.",
		}, []string{"agent_type", "task_type", "status"}),

		ToolCallsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tool_calls_total",
			Help: "Total number of tool invocations by outcome.",
		}, []string{"tool", "outcome"}),

		TriggerFired: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_trigger_fired_total",
			Help: "Proactive messages emitted by trigger rules.",
		}, []string{"agent_type", "rule"}),

		TriggerSuppressed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_trigger_suppressed_total",
			Help: "Trigger firings suppressed by the cooldown window.",
		}, []string{"agent_type", "rule"}),

		ApprovalsPending: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_approvals_pending",
			Help: "Current number of approval requests awaiting a decision.",
		}),

		ApprovalsResolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_approvals_resolved_total",
			Help: "Approval resolutions by final status.",
		}, []string{"status"}),

		InstanceRestarts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_instance_restarts_total",
			Help: "Automatic agent instance restarts triggered by health checks.",
		}, []string{"agent_type"}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_inference_circuit_breaker_state",
			Help: "Current state of the inference circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_audit_buffer_utilization",
			Help: "Current number of events in the action audit buffer.",
		}),
	}
}
