package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/agents"
	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/memory"
)

// scriptedExecutor drives orchestrator tests: per-task failure scripting,
// gating for timing control, and invocation order capture.
type scriptedExecutor struct {
	mu      sync.Mutex
	order   []string
	calls   map[string]int
	fail    map[string]int           // remaining scripted failures; negative means always fail
	gates   map[string]chan struct{} // block the first invocation until closed
	onStart func(taskID string)
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		calls: make(map[string]int),
		fail:  make(map[string]int),
		gates: make(map[string]chan struct{}),
	}
}

func (e *scriptedExecutor) gate(taskID string) chan struct{} {
	ch := make(chan struct{})
	e.mu.Lock()
	e.gates[taskID] = ch
	e.mu.Unlock()
	return ch
}

func (e *scriptedExecutor) ExecuteTask(ctx context.Context, req agents.TaskRequest) (*agents.TaskResult, error) {
	e.mu.Lock()
	e.order = append(e.order, req.TaskID)
	e.calls[req.TaskID]++
	firstCall := e.calls[req.TaskID] == 1
	gate := e.gates[req.TaskID]
	remaining := e.fail[req.TaskID]
	if remaining > 0 {
		e.fail[req.TaskID]--
	}
	start := e.onStart
	e.mu.Unlock()

	if start != nil {
		start(req.TaskID)
	}
	if gate != nil && firstCall {
		<-gate
	}
	if remaining != 0 {
		return nil, errors.New("scripted failure for " + req.TaskID)
	}
	return &agents.TaskResult{Output: "ok-" + req.TaskID, ModelUsed: "mock"}, nil
}

func (e *scriptedExecutor) invocationOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

type orchHarness struct {
	orch     *Orchestrator
	store    *memory.Store
	executor *scriptedExecutor
}

func newOrchHarness(t *testing.T, workers int, mutate func(*config.OrchestratorConfig)) *orchHarness {
	t.Helper()

	cfg := config.Default()
	oc := cfg.Orchestrator
	oc.WorkerCount = workers
	// Tests drive timeout scans directly.
	oc.MonitorInterval = time.Hour
	if mutate != nil {
		mutate(&oc)
	}

	store := memory.NewStore(cfg.Memory, nil, zap.NewNop())
	t.Cleanup(store.Close)

	executor := newScriptedExecutor()
	orch := New(oc, store, nil, zap.NewNop())
	for _, role := range agents.AllRoles() {
		orch.RegisterExecutor(role, executor)
	}
	orch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, orch.Shutdown(ctx))
	})

	return &orchHarness{orch: orch, store: store, executor: executor}
}

func (h *orchHarness) run(t *testing.T, def *WorkflowDefinition, executionID string) *WorkflowExecution {
	t.Helper()
	require.NoError(t, h.orch.RegisterWorkflowTemplate(def))
	exec, err := h.orch.CreateWorkflowExecution(def.WorkflowID, map[string]any{"contract": "c-1"}, "user-1", executionID)
	require.NoError(t, err)
	require.NoError(t, h.orch.StartWorkflowExecution(exec.ExecutionID))
	return exec
}

func (h *orchHarness) waitStatus(t *testing.T, executionID string, want ExecutionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(executionID)
		return err == nil && report.Status == want
	}, 5*time.Second, 5*time.Millisecond, "waiting for execution %s to reach %s", executionID, want)
}

func logEvents(exec *WorkflowExecution, event string) []LogEntry {
	var out []LogEntry
	for _, entry := range exec.ExecutionLog {
		if entry.Event == event {
			out = append(out, entry)
		}
	}
	return out
}

func TestLinearWorkflowCompletes(t *testing.T) {
	h := newOrchHarness(t, 3, nil)
	def := definition("linear", task("A"), task("B", "A"), task("C", "B"))

	exec := h.run(t, def, "exec-linear")
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)

	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, float64(100), final.Progress)

	for _, id := range []string{"A", "B", "C"} {
		result, ok := final.Context["task_"+id+"_result"].(*agents.TaskResult)
		require.True(t, ok, "missing result for %s", id)
		assert.Equal(t, "ok-"+id, result.Output)
	}

	completions := logEvents(final, LogTaskCompleted)
	require.Len(t, completions, 3)
	assert.Equal(t, "A", completions[0].TaskID)
	assert.Equal(t, "B", completions[1].TaskID)
	assert.Equal(t, "C", completions[2].TaskID)
}

func TestFanOutFanIn(t *testing.T) {
	h := newOrchHarness(t, 3, nil)

	// left and right must overlap: each waits at the barrier until the
	// other arrives, which only two concurrent workers can satisfy.
	var barrier sync.WaitGroup
	barrier.Add(2)
	h.executor.onStart = func(taskID string) {
		if taskID == "left" || taskID == "right" {
			barrier.Done()
			barrier.Wait()
		}
	}

	def := definition("diamond",
		task("root"), task("left", "root"), task("right", "root"),
		task("join", "left", "right"))

	exec := h.run(t, def, "exec-diamond")
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)

	order := h.executor.invocationOrder()
	require.Len(t, order, 4)
	assert.Equal(t, "root", order[0])
	assert.Equal(t, "join", order[3])

	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	// join only became ready after both fan-out branches completed.
	join := final.TaskStates["join"]
	for _, branch := range []string{"left", "right"} {
		st := final.TaskStates[branch]
		require.NotNil(t, st.CompletedAt)
		assert.False(t, join.StartedAt.Before(*st.CompletedAt))
	}
}

func TestRetryExhaustion(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	h.executor.fail["X"] = -1

	two := 2
	def := definition("flaky", TaskSpec{
		TaskID:      "X",
		AgentRole:   agents.RoleDataExtraction,
		Description: "always fails",
		MaxRetries:  &two,
	})

	exec := h.run(t, def, "exec-flaky")
	h.waitStatus(t, exec.ExecutionID, ExecutionFailed)

	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)

	st := final.TaskStates["X"]
	assert.Equal(t, TaskFailed, st.Status)
	assert.Equal(t, 2, st.RetryCount)
	assert.Contains(t, st.Error, "scripted failure")

	assert.Len(t, logEvents(final, LogTaskRetry), 2)
	assert.Len(t, logEvents(final, LogTaskFailed), 1)

	report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedTasks)
	require.NotEmpty(t, report.Errors)
}

func TestPauseResume(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	gateA := h.executor.gate("A")

	def := definition("pausable", task("A"), task("B", "A"))
	exec := h.run(t, def, "exec-pause")

	// Pause while A is in flight, then let it finish.
	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
		return err == nil && report.RunningTasks == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, h.orch.PauseWorkflowExecution(exec.ExecutionID))
	close(gateA)

	// A records its completion; B becomes ready but no worker advances it.
	require.Eventually(t, func() bool {
		final, err := h.orch.Execution(exec.ExecutionID)
		return err == nil &&
			final.TaskStates["A"].Status == TaskCompleted &&
			final.TaskStates["B"].Status == TaskReady
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	paused, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionPaused, paused.Status)
	assert.Equal(t, TaskReady, paused.TaskStates["B"].Status)

	require.NoError(t, h.orch.ResumeWorkflowExecution(exec.ExecutionID))
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)
}

func TestTimeoutFailsTask(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	gate := h.executor.gate("slow")
	defer close(gate)

	zero := 0
	def := definition("slowflow", TaskSpec{
		TaskID:         "slow",
		AgentRole:      agents.RoleDataExtraction,
		Description:    "hangs",
		TimeoutSeconds: 1,
		MaxRetries:     &zero,
	})

	exec := h.run(t, def, "exec-slow")
	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
		return err == nil && report.RunningTasks == 1
	}, 5*time.Second, 5*time.Millisecond)

	// The monitor tick observes a clock past the deadline.
	h.orch.scanTimeouts(time.Now().Add(2 * time.Second))

	h.waitStatus(t, exec.ExecutionID, ExecutionFailed)
	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, final.TaskStates["slow"].Status)
	assert.Equal(t, "task timeout", final.TaskStates["slow"].Error)
}

func TestTimeoutRetriesThenSucceeds(t *testing.T) {
	h := newOrchHarness(t, 2, nil)
	gate := h.executor.gate("slow")
	defer close(gate)

	one := 1
	def := definition("slowretry", TaskSpec{
		TaskID:         "slow",
		AgentRole:      agents.RoleDataExtraction,
		Description:    "hangs once",
		TimeoutSeconds: 1,
		MaxRetries:     &one,
	})

	exec := h.run(t, def, "exec-slowretry")
	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
		return err == nil && report.RunningTasks == 1
	}, 5*time.Second, 5*time.Millisecond)

	// First attempt is hung; the monitor requeues it and the second worker
	// runs the ungated second attempt.
	h.orch.scanTimeouts(time.Now().Add(2 * time.Second))

	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)
	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, final.TaskStates["slow"].Status)
	assert.Equal(t, 1, final.TaskStates["slow"].RetryCount)
}

func TestCancelPreservesInFlightResultButStopsPropagation(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	gateA := h.executor.gate("A")

	def := definition("cancellable", task("A"), task("B", "A"))
	exec := h.run(t, def, "exec-cancel")

	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
		return err == nil && report.RunningTasks == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.orch.CancelWorkflowExecution(exec.ExecutionID))
	close(gateA)

	// A still records its result on the cancelled execution.
	require.Eventually(t, func() bool {
		final, err := h.orch.Execution(exec.ExecutionID)
		return err == nil && final.TaskStates["A"].Status == TaskCompleted
	}, 5*time.Second, 5*time.Millisecond)

	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, final.Status)
	assert.NotNil(t, final.CompletedAt)
	assert.Contains(t, final.Context, "task_A_result")
	// The dependent was never promoted.
	assert.Equal(t, TaskWaiting, final.TaskStates["B"].Status)
}

func TestSingleWorkerPreservesEnqueueOrder(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	def := definition("independent", task("t1"), task("t2"), task("t3"))

	exec := h.run(t, def, "exec-order")
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)

	assert.Equal(t, []string{"t1", "t2", "t3"}, h.executor.invocationOrder())
}

func TestSkipOnDependencyFailure(t *testing.T) {
	h := newOrchHarness(t, 1, func(oc *config.OrchestratorConfig) {
		oc.SkipOnDependencyFailed = true
	})
	h.executor.fail["A"] = -1

	zero := 0
	def := definition("skippy",
		TaskSpec{TaskID: "A", AgentRole: agents.RoleDataExtraction, MaxRetries: &zero},
		task("B", "A"), task("C", "B"))

	exec := h.run(t, def, "exec-skip")
	h.waitStatus(t, exec.ExecutionID, ExecutionFailed)

	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, final.TaskStates["A"].Status)
	assert.Equal(t, TaskSkipped, final.TaskStates["B"].Status)
	assert.Equal(t, TaskSkipped, final.TaskStates["C"].Status)
	assert.Len(t, logEvents(final, LogTaskSkipped), 2)
}

func TestDependentsWaitForeverWithoutSkipPolicy(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	h.executor.fail["A"] = -1

	zero := 0
	def := definition("stuck",
		TaskSpec{TaskID: "A", AgentRole: agents.RoleDataExtraction, MaxRetries: &zero},
		task("B", "A"))

	exec := h.run(t, def, "exec-stuck")

	// A fails; B stays waiting; the execution is not finalized because B is
	// non-terminal.
	require.Eventually(t, func() bool {
		final, err := h.orch.Execution(exec.ExecutionID)
		return err == nil && final.TaskStates["A"].Status == TaskFailed
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	final, err := h.orch.Execution(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionRunning, final.Status)
	assert.Equal(t, TaskWaiting, final.TaskStates["B"].Status)
}

func TestLifecycleStateConflicts(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	gateA := h.executor.gate("A")
	defer close(gateA)

	def := definition("lifecycle", task("A"))
	require.NoError(t, h.orch.RegisterWorkflowTemplate(def))
	exec, err := h.orch.CreateWorkflowExecution("lifecycle", nil, "u", "exec-lc")
	require.NoError(t, err)

	// Pending: pause and resume are conflicts; start of a missing id fails.
	assert.ErrorIs(t, h.orch.PauseWorkflowExecution(exec.ExecutionID), ErrStateConflict)
	assert.ErrorIs(t, h.orch.ResumeWorkflowExecution(exec.ExecutionID), ErrStateConflict)
	assert.ErrorIs(t, h.orch.StartWorkflowExecution("ghost"), ErrNotFound)

	require.NoError(t, h.orch.StartWorkflowExecution(exec.ExecutionID))
	assert.ErrorIs(t, h.orch.StartWorkflowExecution(exec.ExecutionID), ErrStateConflict)

	require.NoError(t, h.orch.CancelWorkflowExecution(exec.ExecutionID))
	assert.ErrorIs(t, h.orch.CancelWorkflowExecution(exec.ExecutionID), ErrStateConflict)
	assert.ErrorIs(t, h.orch.PauseWorkflowExecution(exec.ExecutionID), ErrStateConflict)

	_, err = h.orch.GetWorkflowStatus("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateExecutionErrors(t *testing.T) {
	h := newOrchHarness(t, 1, nil)

	_, err := h.orch.CreateWorkflowExecution("missing-template", nil, "u", "")
	assert.ErrorIs(t, err, ErrNotFound)

	def := definition("dup", task("A"))
	require.NoError(t, h.orch.RegisterWorkflowTemplate(def))
	_, err = h.orch.CreateWorkflowExecution("dup", nil, "u", "exec-1")
	require.NoError(t, err)
	_, err = h.orch.CreateWorkflowExecution("dup", nil, "u", "exec-1")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCreateExecutionSeedsStateAndContext(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	def := definition("seeded", task("A"), task("B", "A"))
	require.NoError(t, h.orch.RegisterWorkflowTemplate(def))

	exec, err := h.orch.CreateWorkflowExecution("seeded",
		map[string]any{"contract_id": "c-9"}, "user-7", "")
	require.NoError(t, err)

	assert.NotEmpty(t, exec.ExecutionID)
	assert.Equal(t, ExecutionPending, exec.Status)
	assert.Equal(t, "user-7", exec.Context["user_id"])
	assert.Equal(t, map[string]any{"contract_id": "c-9"}, exec.Context["input_data"])
	for _, st := range exec.TaskStates {
		assert.Equal(t, TaskWaiting, st.Status)
		assert.Equal(t, 3, st.MaxRetries)
	}

	// Initial state document is persisted under the stable key.
	state, ok := h.store.GetWorkflowState(context.Background(), exec.ExecutionID)
	require.True(t, ok)
	doc := state.(map[string]any)
	assert.Equal(t, string(ExecutionPending), doc["status"])
}

func TestFinalStatePersisted(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	def := definition("persisted", task("A"))

	exec := h.run(t, def, "exec-persist")
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)

	state, ok := h.store.GetWorkflowState(context.Background(), exec.ExecutionID)
	require.True(t, ok)
	doc := state.(map[string]any)
	assert.Equal(t, string(ExecutionCompleted), doc["status"])
	assert.Equal(t, float64(100), doc["progress"])
}

func TestExecutionStatusMapShape(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	def := definition("statusy", task("A"))

	exec := h.run(t, def, "exec-status")
	h.waitStatus(t, exec.ExecutionID, ExecutionCompleted)

	status, err := h.orch.ExecutionStatus(exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, 1, status["total_tasks"])
	assert.Equal(t, 1, status["completed_tasks"])

	_, err = h.orch.ExecutionStatus("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProgressIsMonotonic(t *testing.T) {
	h := newOrchHarness(t, 1, nil)
	def := definition("progressive", task("A"), task("B", "A"), task("C", "B"))

	exec := h.run(t, def, "exec-progress")

	var last float64
	decreased := false
	require.Eventually(t, func() bool {
		report, err := h.orch.GetWorkflowStatus(exec.ExecutionID)
		if err != nil {
			return false
		}
		if report.Progress < last {
			decreased = true
		}
		last = report.Progress
		return report.Status == ExecutionCompleted
	}, 5*time.Second, time.Millisecond)
	assert.False(t, decreased, "progress went backwards")
	assert.Equal(t, float64(100), last)
}
