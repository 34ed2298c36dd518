package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_workflows_started_total",
			Help: "Total number of workflow executions started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractpilot_workflows_completed_total",
			Help: "Total number of workflow executions that reached a terminal state",
		},
		[]string{"status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contractpilot_workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Task metrics
	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractpilot_tasks_executed_total",
			Help: "Total number of task attempts by agent role and outcome",
		},
		[]string{"agent_role", "outcome"},
	)

	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_task_retries_total",
			Help: "Total number of task retries",
		},
	)

	TaskTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_task_timeouts_total",
			Help: "Total number of tasks failed by the timeout monitor",
		},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractpilot_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_role"},
	)

	ReadyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractpilot_ready_queue_depth",
			Help: "Number of ready tasks waiting for a worker",
		},
	)

	// Model router metrics
	ModelRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractpilot_model_requests_total",
			Help: "Total number of model invocations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ModelFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_model_fallbacks_total",
			Help: "Total number of fallback selections after a provider failure",
		},
	)

	ModelTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contractpilot_model_tokens_used",
			Help:    "Total tokens consumed per model request",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
	)

	ModelCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contractpilot_model_cost_usd",
			Help:    "Cost in USD per model request",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		},
	)

	ModelsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractpilot_models_available",
			Help: "Number of models currently marked available",
		},
	)

	// Memory store metrics
	MemoryEntriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractpilot_memory_entries_stored_total",
			Help: "Total number of memory entries written by type",
		},
		[]string{"memory_type"},
	)

	MemoryCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractpilot_memory_cache_size",
			Help: "Number of entries in the in-memory cache",
		},
	)

	MemoryExpiredSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_memory_expired_swept_total",
			Help: "Total number of expired entries removed by the sweeper",
		},
	)

	MemoryPeerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractpilot_memory_peer_errors_total",
			Help: "Total number of durable peer operation failures",
		},
	)

	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractpilot_tool_executions_total",
			Help: "Total number of tool executions by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractpilot_tool_execution_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"tool"},
	)
)
