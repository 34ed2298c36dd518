package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/agents"
	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/metrics"
	"github.com/contractpilot/orchestrator/internal/tracing"
)

// pausedRequeueDelay throttles the pull/requeue loop while an execution is
// paused.
const pausedRequeueDelay = 50 * time.Millisecond

// Executor runs one task for one role. The agents.Runtime satisfies it; tests
// substitute scripted executors.
type Executor interface {
	ExecuteTask(ctx context.Context, req agents.TaskRequest) (*agents.TaskResult, error)
}

// Orchestrator owns workflow definitions and executions: scheduling over a
// fixed worker pool, dependency propagation, retries, timeouts, pause/resume,
// and cancellation. All task state transitions happen under o.mu; no lock is
// held across an executor call.
type Orchestrator struct {
	cfg        config.OrchestratorConfig
	logger     *zap.Logger
	store      *memory.Store
	toolExists ToolLookup

	executors map[agents.Role]Executor

	mu          sync.Mutex
	definitions map[string]*WorkflowDefinition
	executions  map[string]*WorkflowExecution
	execDefs    map[string]*WorkflowDefinition

	readyQueue chan ReadyTask
	stopCh     chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// New builds an orchestrator. toolExists may be nil to skip task_type
// validation against the tool catalog.
func New(cfg config.OrchestratorConfig, store *memory.Store, toolExists ToolLookup, logger *zap.Logger) *Orchestrator {
	capacity := cfg.ReadyQueueCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	return &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		toolExists:  toolExists,
		executors:   make(map[agents.Role]Executor),
		definitions: make(map[string]*WorkflowDefinition),
		executions:  make(map[string]*WorkflowExecution),
		execDefs:    make(map[string]*WorkflowDefinition),
		readyQueue:  make(chan ReadyTask, capacity),
		stopCh:      make(chan struct{}),
	}
}

// RegisterExecutor binds a role to its runtime. Call before Start.
func (o *Orchestrator) RegisterExecutor(role agents.Role, ex Executor) {
	o.executors[role] = ex
}

// Start launches the worker pool and the timeout monitor.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		workers := o.cfg.WorkerCount
		if workers <= 0 {
			workers = 3
		}
		for i := 1; i <= workers; i++ {
			o.wg.Add(1)
			go o.worker(i)
		}
		o.wg.Add(1)
		go o.monitor()

		o.logger.Info("Orchestrator started",
			zap.Int("workers", workers),
			zap.Duration("monitor_interval", o.cfg.MonitorInterval))
	})
}

// Shutdown stops workers and the monitor, waiting up to the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stopCh) })

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterWorkflowTemplate inserts or replaces a definition by workflow_id.
// Invalid definitions are rejected and nothing is stored.
func (o *Orchestrator) RegisterWorkflowTemplate(def *WorkflowDefinition) error {
	if err := ValidateDefinition(def, o.toolExists); err != nil {
		return err
	}

	stored := *def
	stored.Tasks = append([]TaskSpec(nil), def.Tasks...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	o.mu.Lock()
	_, replaced := o.definitions[stored.WorkflowID]
	o.definitions[stored.WorkflowID] = &stored
	o.mu.Unlock()

	o.logger.Info("Workflow template registered",
		zap.String("workflow_id", stored.WorkflowID),
		zap.Int("tasks", len(stored.Tasks)),
		zap.Bool("replaced", replaced))
	return nil
}

// GetWorkflowTemplate returns a registered definition.
func (o *Orchestrator) GetWorkflowTemplate(workflowID string) (*WorkflowDefinition, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	def, ok := o.definitions[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow template %s: %w", workflowID, ErrNotFound)
	}
	copied := *def
	copied.Tasks = append([]TaskSpec(nil), def.Tasks...)
	return &copied, nil
}

// CreateWorkflowExecution clones a definition's tasks into fresh waiting
// states, seeds the context, and persists the initial state document.
// executionID may be empty; one is generated.
func (o *Orchestrator) CreateWorkflowExecution(templateID string, inputData map[string]any, userID, executionID string) (*WorkflowExecution, error) {
	if executionID == "" {
		executionID = uuid.NewString()
	}

	o.mu.Lock()
	def, ok := o.definitions[templateID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("workflow template %s: %w", templateID, ErrNotFound)
	}
	if _, exists := o.executions[executionID]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("execution %s already exists: %w", executionID, ErrStateConflict)
	}

	now := time.Now()
	exec := &WorkflowExecution{
		ExecutionID: executionID,
		WorkflowID:  def.WorkflowID,
		UserID:      userID,
		Status:      ExecutionPending,
		CreatedAt:   now,
		Context: map[string]any{
			"input_data": inputData,
			"user_id":    userID,
		},
		TaskStates: make(map[string]*TaskState, len(def.Tasks)),
	}
	for i := range def.Tasks {
		spec := &def.Tasks[i]
		maxRetries := o.cfg.DefaultTaskMaxRetries
		if spec.MaxRetries != nil {
			maxRetries = *spec.MaxRetries
		}
		exec.TaskStates[spec.TaskID] = &TaskState{
			TaskID:     spec.TaskID,
			Status:     TaskWaiting,
			MaxRetries: maxRetries,
		}
	}

	o.executions[executionID] = exec
	o.execDefs[executionID] = def
	snapshot := cloneExecution(exec)
	o.persistStateLocked(exec)
	o.mu.Unlock()

	metrics.WorkflowsStarted.Inc()
	o.logger.Info("Workflow execution created",
		zap.String("execution_id", executionID),
		zap.String("workflow_id", def.WorkflowID),
		zap.Int("tasks", len(def.Tasks)))
	return snapshot, nil
}

// StartWorkflowExecution transitions pending to running and enqueues every
// task with no unmet dependencies.
func (o *Orchestrator) StartWorkflowExecution(executionID string) error {
	o.mu.Lock()
	exec, ok := o.executions[executionID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	if exec.Status != ExecutionPending {
		o.mu.Unlock()
		return fmt.Errorf("execution %s is %s, not pending: %w", executionID, exec.Status, ErrStateConflict)
	}

	now := time.Now()
	exec.Status = ExecutionRunning
	exec.StartedAt = &now
	o.appendLogLocked(exec, LogExecutionStarted, "", 0, 0, "")

	def := o.execDefs[executionID]
	var toEnqueue []ReadyTask
	for i := range def.Tasks {
		spec := &def.Tasks[i]
		if o.dependenciesMetLocked(exec, spec) {
			st := exec.TaskStates[spec.TaskID]
			if st.Status == TaskWaiting {
				st.Status = TaskReady
				toEnqueue = append(toEnqueue, ReadyTask{ExecutionID: executionID, TaskID: spec.TaskID})
			}
		}
	}
	o.persistStateLocked(exec)
	o.mu.Unlock()

	for _, rt := range toEnqueue {
		o.enqueue(rt)
	}
	return nil
}

// PauseWorkflowExecution is valid only while running. The ready queue is not
// drained; workers requeue paused-execution tasks without advancing them.
func (o *Orchestrator) PauseWorkflowExecution(executionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	exec, ok := o.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	if exec.Status != ExecutionRunning {
		return fmt.Errorf("execution %s is %s, not running: %w", executionID, exec.Status, ErrStateConflict)
	}
	exec.Status = ExecutionPaused
	o.appendLogLocked(exec, LogExecutionPaused, "", 0, 0, "")
	return nil
}

// ResumeWorkflowExecution is valid only while paused. Every currently-ready
// task is re-enqueued; duplicates are harmless because workers only act on
// tasks still in ready state.
func (o *Orchestrator) ResumeWorkflowExecution(executionID string) error {
	o.mu.Lock()
	exec, ok := o.executions[executionID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	if exec.Status != ExecutionPaused {
		o.mu.Unlock()
		return fmt.Errorf("execution %s is %s, not paused: %w", executionID, exec.Status, ErrStateConflict)
	}

	exec.Status = ExecutionRunning
	o.appendLogLocked(exec, LogExecutionResumed, "", 0, 0, "")

	var toEnqueue []ReadyTask
	for id, st := range exec.TaskStates {
		if st.Status == TaskReady {
			toEnqueue = append(toEnqueue, ReadyTask{ExecutionID: executionID, TaskID: id})
		}
	}
	o.mu.Unlock()

	for _, rt := range toEnqueue {
		o.enqueue(rt)
	}
	return nil
}

// CancelWorkflowExecution is valid from any non-terminal state. Cancellation
// is cooperative: running tasks finish their current call and still record
// results, but dependents are never enqueued.
func (o *Orchestrator) CancelWorkflowExecution(executionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	exec, ok := o.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("execution %s is already %s: %w", executionID, exec.Status, ErrStateConflict)
	}

	now := time.Now()
	exec.Status = ExecutionCancelled
	exec.CompletedAt = &now
	o.appendLogLocked(exec, LogExecutionFinished, "", 0, 0, "cancelled")
	o.persistStateLocked(exec)

	metrics.WorkflowsCompleted.WithLabelValues(string(ExecutionCancelled)).Inc()
	return nil
}

// GetWorkflowStatus returns the aggregated progress DTO.
func (o *Orchestrator) GetWorkflowStatus(executionID string) (*StatusReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	exec, ok := o.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}

	report := &StatusReport{
		ExecutionID: exec.ExecutionID,
		Status:      exec.Status,
		Progress:    exec.Progress,
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		TotalTasks:  len(exec.TaskStates),
	}
	for _, st := range exec.TaskStates {
		switch st.Status {
		case TaskCompleted:
			report.CompletedTasks++
		case TaskRunning:
			report.RunningTasks++
		case TaskFailed:
			report.FailedTasks++
		}
	}
	for _, entry := range exec.ExecutionLog {
		if entry.Event == LogTaskFailed && entry.Message != "" {
			report.Errors = append(report.Errors, entry.Message)
		}
	}
	return report, nil
}

// ExecutionStatus satisfies the tool-facing status contract with a generic
// map shape.
func (o *Orchestrator) ExecutionStatus(executionID string) (map[string]any, error) {
	report, err := o.GetWorkflowStatus(executionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"execution_id":    report.ExecutionID,
		"status":          string(report.Status),
		"progress":        report.Progress,
		"total_tasks":     report.TotalTasks,
		"completed_tasks": report.CompletedTasks,
		"running_tasks":   report.RunningTasks,
		"failed_tasks":    report.FailedTasks,
	}, nil
}

// Execution returns a snapshot of one execution for inspection.
func (o *Orchestrator) Execution(executionID string) (*WorkflowExecution, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	exec, ok := o.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	return cloneExecution(exec), nil
}

// worker is one routine of the fixed pool.
func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case rt := <-o.readyQueue:
			metrics.ReadyQueueDepth.Dec()
			o.process(id, rt)
		}
	}
}

// process runs one ready task end to end. Returns quickly for stale queue
// entries; requeues without advancing when the execution is paused.
func (o *Orchestrator) process(workerID int, rt ReadyTask) {
	o.mu.Lock()
	exec, ok := o.executions[rt.ExecutionID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if exec.Status == ExecutionPaused {
		o.mu.Unlock()
		o.requeuePaused(rt)
		return
	}
	if exec.Status != ExecutionRunning {
		o.mu.Unlock()
		return
	}
	st, ok := exec.TaskStates[rt.TaskID]
	if !ok || st.Status != TaskReady {
		o.mu.Unlock()
		return
	}

	def := o.execDefs[rt.ExecutionID]
	spec := def.task(rt.TaskID)
	if spec == nil {
		o.mu.Unlock()
		return
	}

	now := time.Now()
	st.Status = TaskRunning
	st.StartedAt = &now
	st.AssignedWorker = workerID
	attempt := st.RetryCount

	ctxSnapshot := cloneMap(exec.Context)
	userID := exec.UserID
	o.mu.Unlock()

	o.logger.Info("Task started",
		zap.String("execution_id", rt.ExecutionID),
		zap.String("task_id", rt.TaskID),
		zap.String("agent_role", string(spec.AgentRole)),
		zap.Int("worker", workerID),
		zap.Int("attempt", attempt))

	started := time.Now()
	taskCtx, span := tracing.StartTaskSpan(context.Background(), rt.ExecutionID, rt.TaskID, string(spec.AgentRole))
	result, err := o.executeTask(taskCtx, spec, rt, ctxSnapshot, userID)
	span.End()
	duration := time.Since(started)

	o.finishTask(workerID, rt, spec, attempt, result, err, duration)
}

func (o *Orchestrator) executeTask(ctx context.Context, spec *TaskSpec, rt ReadyTask, ctxSnapshot map[string]any, userID string) (*agents.TaskResult, error) {
	executor, ok := o.executors[spec.AgentRole]
	if !ok {
		return nil, fmt.Errorf("no agent runtime registered for role %s", spec.AgentRole)
	}
	return executor.ExecuteTask(ctx, agents.TaskRequest{
		TaskID:         rt.TaskID,
		WorkflowID:     rt.ExecutionID,
		UserID:         userID,
		Description:    spec.Description,
		ExpectedOutput: spec.ExpectedOutput,
		InputData:      spec.InputData,
		Context:        ctxSnapshot,
	})
}

// finishTask applies the attempt outcome. The attempt guard discards results
// from attempts the monitor already timed out.
func (o *Orchestrator) finishTask(workerID int, rt ReadyTask, spec *TaskSpec, attempt int, result *agents.TaskResult, err error, duration time.Duration) {
	o.mu.Lock()
	exec, ok := o.executions[rt.ExecutionID]
	if !ok {
		o.mu.Unlock()
		return
	}
	st := exec.TaskStates[rt.TaskID]
	if st == nil || st.Status != TaskRunning || st.RetryCount != attempt {
		o.mu.Unlock()
		o.logger.Warn("Discarding stale task outcome",
			zap.String("execution_id", rt.ExecutionID),
			zap.String("task_id", rt.TaskID),
			zap.Int("attempt", attempt))
		return
	}

	now := time.Now()
	var toEnqueue []ReadyTask

	if err == nil {
		st.Status = TaskCompleted
		st.CompletedAt = &now
		st.Result = result
		exec.Context["task_"+rt.TaskID+"_result"] = result
		o.appendLogLocked(exec, LogTaskCompleted, rt.TaskID, workerID, duration, "")
		metrics.TasksExecuted.WithLabelValues(string(spec.AgentRole), "success").Inc()
		metrics.TaskDuration.WithLabelValues(string(spec.AgentRole)).Observe(duration.Seconds())
	} else if st.RetryCount < st.MaxRetries {
		st.RetryCount++
		st.Status = TaskReady
		o.appendLogLocked(exec, LogTaskRetry, rt.TaskID, workerID, duration, err.Error())
		metrics.TaskRetries.Inc()
		if exec.Status == ExecutionRunning {
			toEnqueue = append(toEnqueue, rt)
		}
	} else {
		st.Status = TaskFailed
		st.CompletedAt = &now
		st.Error = err.Error()
		o.appendLogLocked(exec, LogTaskFailed, rt.TaskID, workerID, duration, err.Error())
		metrics.TasksExecuted.WithLabelValues(string(spec.AgentRole), "failure").Inc()
	}

	o.updateProgressLocked(exec)
	if exec.Status == ExecutionRunning || exec.Status == ExecutionPaused {
		toEnqueue = append(toEnqueue, o.propagateLocked(rt.ExecutionID, exec)...)
		o.checkCompletionLocked(exec)
	}
	o.mu.Unlock()

	for _, next := range toEnqueue {
		o.enqueue(next)
	}
}

// propagateLocked transitions waiting tasks whose dependencies completed to
// ready. Tasks are only enqueued while the execution is running; during a
// pause they stay ready for resume to pick up. With the skip policy enabled,
// waiting tasks behind a failed dependency cascade to skipped.
func (o *Orchestrator) propagateLocked(executionID string, exec *WorkflowExecution) []ReadyTask {
	def := o.execDefs[executionID]
	var toEnqueue []ReadyTask

	for changed := true; changed; {
		changed = false
		for i := range def.Tasks {
			spec := &def.Tasks[i]
			st := exec.TaskStates[spec.TaskID]
			if st.Status != TaskWaiting {
				continue
			}
			if o.dependenciesMetLocked(exec, spec) {
				st.Status = TaskReady
				changed = true
				if exec.Status == ExecutionRunning {
					toEnqueue = append(toEnqueue, ReadyTask{ExecutionID: executionID, TaskID: spec.TaskID})
				}
				continue
			}
			if o.cfg.SkipOnDependencyFailed && o.dependencyFailedLocked(exec, spec) {
				st.Status = TaskSkipped
				changed = true
				o.appendLogLocked(exec, LogTaskSkipped, spec.TaskID, 0, 0, "dependency failed")
			}
		}
	}
	return toEnqueue
}

func (o *Orchestrator) dependenciesMetLocked(exec *WorkflowExecution, spec *TaskSpec) bool {
	for _, dep := range spec.Dependencies {
		st, ok := exec.TaskStates[dep]
		if !ok || st.Status != TaskCompleted {
			return false
		}
	}
	return true
}

func (o *Orchestrator) dependencyFailedLocked(exec *WorkflowExecution, spec *TaskSpec) bool {
	for _, dep := range spec.Dependencies {
		if st, ok := exec.TaskStates[dep]; ok {
			if st.Status == TaskFailed || st.Status == TaskSkipped {
				return true
			}
		}
	}
	return false
}

// checkCompletionLocked finalizes the execution once every task is terminal.
func (o *Orchestrator) checkCompletionLocked(exec *WorkflowExecution) {
	if exec.Status.Terminal() {
		return
	}
	for _, st := range exec.TaskStates {
		if !st.Status.Terminal() {
			return
		}
	}

	final := ExecutionCompleted
	for _, st := range exec.TaskStates {
		if st.Status == TaskFailed {
			final = ExecutionFailed
			break
		}
	}

	now := time.Now()
	exec.Status = final
	exec.CompletedAt = &now
	o.appendLogLocked(exec, LogExecutionFinished, "", 0, 0, string(final))
	o.persistStateLocked(exec)

	metrics.WorkflowsCompleted.WithLabelValues(string(final)).Inc()
	if exec.StartedAt != nil {
		metrics.WorkflowDuration.Observe(now.Sub(*exec.StartedAt).Seconds())
	}
	o.logger.Info("Workflow execution finished",
		zap.String("execution_id", exec.ExecutionID),
		zap.String("status", string(final)),
		zap.Float64("progress", exec.Progress))
}

func (o *Orchestrator) updateProgressLocked(exec *WorkflowExecution) {
	if len(exec.TaskStates) == 0 {
		return
	}
	completed := 0
	for _, st := range exec.TaskStates {
		if st.Status == TaskCompleted {
			completed++
		}
	}
	exec.Progress = 100 * float64(completed) / float64(len(exec.TaskStates))
}

// monitor periodically fails running tasks past their timeout, subject to
// the normal retry rules.
func (o *Orchestrator) monitor() {
	defer o.wg.Done()

	interval := o.cfg.MonitorInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.scanTimeouts(time.Now())
		}
	}
}

// scanTimeouts is one monitor pass.
func (o *Orchestrator) scanTimeouts(now time.Time) {
	o.mu.Lock()
	var toEnqueue []ReadyTask

	for executionID, exec := range o.executions {
		if exec.Status != ExecutionRunning {
			continue
		}
		def := o.execDefs[executionID]
		changed := false
		for i := range def.Tasks {
			spec := &def.Tasks[i]
			st := exec.TaskStates[spec.TaskID]
			if st.Status != TaskRunning || spec.TimeoutSeconds <= 0 || st.StartedAt == nil {
				continue
			}
			if now.Sub(*st.StartedAt) <= time.Duration(spec.TimeoutSeconds)*time.Second {
				continue
			}

			metrics.TaskTimeouts.Inc()
			o.logger.Warn("Task timed out",
				zap.String("execution_id", executionID),
				zap.String("task_id", spec.TaskID),
				zap.Int("timeout_seconds", spec.TimeoutSeconds))

			if st.RetryCount < st.MaxRetries {
				st.RetryCount++
				st.Status = TaskReady
				st.StartedAt = nil
				o.appendLogLocked(exec, LogTaskRetry, spec.TaskID, st.AssignedWorker, 0, "task timeout")
				metrics.TaskRetries.Inc()
				toEnqueue = append(toEnqueue, ReadyTask{ExecutionID: executionID, TaskID: spec.TaskID})
			} else {
				ts := now
				st.Status = TaskFailed
				st.CompletedAt = &ts
				st.Error = "task timeout"
				o.appendLogLocked(exec, LogTaskFailed, spec.TaskID, st.AssignedWorker, 0, "task timeout")
			}
			changed = true
		}
		if changed {
			o.updateProgressLocked(exec)
			toEnqueue = append(toEnqueue, o.propagateLocked(executionID, exec)...)
			o.checkCompletionLocked(exec)
		}
	}
	o.mu.Unlock()

	for _, rt := range toEnqueue {
		o.enqueue(rt)
	}
}

// enqueue blocks only when the queue is at capacity; shutdown unblocks it.
func (o *Orchestrator) enqueue(rt ReadyTask) {
	select {
	case o.readyQueue <- rt:
		metrics.ReadyQueueDepth.Inc()
	case <-o.stopCh:
	}
}

// requeuePaused puts a paused-execution task back without advancing it, with
// a short delay so the pool does not spin on a paused queue.
func (o *Orchestrator) requeuePaused(rt ReadyTask) {
	select {
	case o.readyQueue <- rt:
		metrics.ReadyQueueDepth.Inc()
	case <-o.stopCh:
		return
	}
	select {
	case <-time.After(pausedRequeueDelay):
	case <-o.stopCh:
	}
}

// persistStateLocked writes the authoritative state document for restart
// recovery. Write failures degrade to cache-only and are logged by the store.
func (o *Orchestrator) persistStateLocked(exec *WorkflowExecution) {
	doc := map[string]any{
		"status":     string(exec.Status),
		"progress":   exec.Progress,
		"context":    cloneMap(exec.Context),
		"created_at": exec.CreatedAt,
	}
	if exec.CompletedAt != nil {
		doc["completed_at"] = *exec.CompletedAt
	}
	var failed []string
	for id, st := range exec.TaskStates {
		if st.Status == TaskFailed {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		doc["failed_tasks"] = failed
	}

	if err := o.store.SetWorkflowState(context.Background(), exec.ExecutionID, doc); err != nil {
		o.logger.Warn("Failed to persist workflow state",
			zap.String("execution_id", exec.ExecutionID), zap.Error(err))
	}
}

func (o *Orchestrator) appendLogLocked(exec *WorkflowExecution, event, taskID string, worker int, duration time.Duration, message string) {
	exec.ExecutionLog = append(exec.ExecutionLog, LogEntry{
		Timestamp: time.Now(),
		Event:     event,
		TaskID:    taskID,
		Worker:    worker,
		Duration:  duration,
		Message:   message,
	})
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneExecution(exec *WorkflowExecution) *WorkflowExecution {
	out := *exec
	out.Context = cloneMap(exec.Context)
	out.TaskStates = make(map[string]*TaskState, len(exec.TaskStates))
	for id, st := range exec.TaskStates {
		copied := *st
		out.TaskStates[id] = &copied
	}
	out.ExecutionLog = append([]LogEntry(nil), exec.ExecutionLog...)
	return &out
}
