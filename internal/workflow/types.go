package workflow

import (
	"time"

	"github.com/contractpilot/orchestrator/internal/agents"
)

// Priority orders tasks of equal readiness. The scheduler treats it as
// advisory; the queue itself is FIFO.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TaskStatus is the per-task state machine.
type TaskStatus string

const (
	TaskWaiting   TaskStatus = "waiting"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// ExecutionStatus is the execution-level state machine.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the execution has reached its single terminal
// transition.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// TaskSpec is one node of the DAG template. Immutable after registration.
type TaskSpec struct {
	TaskID         string         `yaml:"task_id" json:"task_id"`
	AgentRole      agents.Role    `yaml:"agent_role" json:"agent_role"`
	TaskType       string         `yaml:"task_type,omitempty" json:"task_type,omitempty"`
	Description    string         `yaml:"description" json:"description"`
	ExpectedOutput string         `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	InputData      map[string]any `yaml:"input_data,omitempty" json:"input_data,omitempty"`
	Dependencies   []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Priority       Priority       `yaml:"priority,omitempty" json:"priority,omitempty"`
	TimeoutSeconds int            `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	// MaxRetries nil means the configured default applies.
	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// WorkflowDefinition is the immutable DAG template.
type WorkflowDefinition struct {
	WorkflowID  string     `yaml:"workflow_id" json:"workflow_id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Tasks       []TaskSpec `yaml:"tasks" json:"tasks"`
	CreatedAt   time.Time  `yaml:"-" json:"created_at"`
}

// task returns the spec for an id, or nil.
func (d *WorkflowDefinition) task(id string) *TaskSpec {
	for i := range d.Tasks {
		if d.Tasks[i].TaskID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// TaskState is the mutable per-task runtime record. Fields are guarded by
// the orchestrator's execution lock.
type TaskState struct {
	TaskID         string             `json:"task_id"`
	Status         TaskStatus         `json:"status"`
	RetryCount     int                `json:"retry_count"`
	MaxRetries     int                `json:"max_retries"`
	AssignedWorker int                `json:"assigned_worker,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	Result         *agents.TaskResult `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// LogEntry is one record of the append-only execution log.
type LogEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Event     string        `json:"event"`
	TaskID    string        `json:"task_id,omitempty"`
	Worker    int           `json:"worker,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Log event names.
const (
	LogTaskCompleted     = "task_completed"
	LogTaskRetry         = "task_retry"
	LogTaskFailed        = "task_failed"
	LogTaskSkipped       = "task_skipped"
	LogExecutionStarted  = "execution_started"
	LogExecutionPaused   = "execution_paused"
	LogExecutionResumed  = "execution_resumed"
	LogExecutionFinished = "execution_finished"
)

// WorkflowExecution is one run of a definition. All mutation goes through the
// orchestrator; external references are read-only snapshots.
type WorkflowExecution struct {
	ExecutionID  string                `json:"execution_id"`
	WorkflowID   string                `json:"workflow_id"`
	UserID       string                `json:"user_id,omitempty"`
	Status       ExecutionStatus       `json:"status"`
	Progress     float64               `json:"progress"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Context      map[string]any        `json:"context"`
	TaskStates   map[string]*TaskState `json:"task_states"`
	ExecutionLog []LogEntry            `json:"execution_log"`
}

// ReadyTask is the value that flows through the ready queue. It references
// runtime state by id so queue entries can never mutate a definition.
type ReadyTask struct {
	ExecutionID string
	TaskID      string
}

// StatusReport is the status DTO returned to pollers.
type StatusReport struct {
	ExecutionID    string          `json:"execution_id"`
	Status         ExecutionStatus `json:"status"`
	Progress       float64         `json:"progress"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	TotalTasks     int             `json:"total_tasks"`
	CompletedTasks int             `json:"completed_tasks"`
	RunningTasks   int             `json:"running_tasks"`
	FailedTasks    int             `json:"failed_tasks"`
	Errors         []string        `json:"errors,omitempty"`
}
