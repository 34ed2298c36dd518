package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/models"
	"github.com/contractpilot/orchestrator/internal/router"
	"github.com/contractpilot/orchestrator/internal/tools"
)

// defaultMaxToolIterations bounds the model/tool loop for one task.
const defaultMaxToolIterations = 5

// TaskRequest is the execution contract input for one task.
type TaskRequest struct {
	TaskID         string
	WorkflowID     string
	UserID         string
	Description    string
	ExpectedOutput string
	InputData      map[string]any
	// Context is the execution-level context snapshot.
	Context map[string]any
}

// TaskResult is what a completed task hands back to the orchestrator.
type TaskResult struct {
	Output    string  `json:"output"`
	ModelUsed string  `json:"model_used"`
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
	ToolCalls int     `json:"tool_calls,omitempty"`
}

// Runtime executes tasks for exactly one role. It is stateless between tasks;
// durable state lives in the memory store.
type Runtime struct {
	role    Role
	cfg     RoleConfig
	router  *router.Router
	tools   *tools.Registry
	store   *memory.Store
	logger  *zap.Logger
	maxIter int
}

// NewRuntime binds a role to its collaborators. Unknown roles are rejected.
func NewRuntime(role Role, r *router.Router, reg *tools.Registry, store *memory.Store, logger *zap.Logger) (*Runtime, error) {
	cfg, ok := ConfigFor(role)
	if !ok {
		return nil, fmt.Errorf("unknown agent role: %s", role)
	}
	return &Runtime{
		role:    role,
		cfg:     cfg,
		router:  r,
		tools:   reg,
		store:   store,
		logger:  logger.With(zap.String("agent_role", string(role))),
		maxIter: defaultMaxToolIterations,
	}, nil
}

func (rt *Runtime) Role() Role { return rt.role }

// ExecuteTask runs one task: build the prompt, call the model, and loop
// through tool calls until the model answers directly or the iteration bound
// is hit. The returned result carries aggregate token and cost accounting
// across every model turn.
func (rt *Runtime) ExecuteTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	taskCtx := rt.materializeContext(req)

	messages := []models.Message{{
		Role:    models.RoleUser,
		Content: rt.userPrompt(req, taskCtx),
	}}

	result := &TaskResult{}
	var lastContent string

	for iter := 0; iter < rt.maxIter; iter++ {
		resp, err := rt.router.GenerateResponse(ctx, &models.ModelRequest{
			SystemPrompt:    rt.systemPrompt(req),
			Messages:        messages,
			ModelPreference: rt.cfg.ModelPreference,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s task %s: %w", rt.role, req.TaskID, err)
		}

		result.ModelUsed = resp.ModelUsed
		result.Tokens += resp.TokenUsage.TotalTokens
		result.Cost += resp.Cost
		lastContent = resp.Content

		call, ok := parseToolCall(resp.Content)
		if !ok {
			result.Output = resp.Content
			return result, nil
		}

		result.ToolCalls++
		toolOutput := rt.invokeTool(ctx, req, call)

		messages = append(messages,
			models.Message{Role: models.RoleAssistant, Content: resp.Content},
			models.Message{Role: models.RoleUser, Content: toolOutput},
		)
	}

	rt.logger.Warn("Tool iteration bound reached, returning last model output",
		zap.String("task_id", req.TaskID),
		zap.Int("iterations", rt.maxIter))
	result.Output = lastContent
	return result, nil
}

// invokeTool enforces the role allow-list, runs the tool through the
// registry wrapper, and renders the outcome as the next user turn.
func (rt *Runtime) invokeTool(ctx context.Context, req TaskRequest, call *toolCall) string {
	if !rt.cfg.AllowsTool(call.Tool) {
		rt.logger.Warn("Tool outside role allow-list",
			zap.String("tool", call.Tool),
			zap.String("task_id", req.TaskID))
		return fmt.Sprintf("Tool error: %q is not available to the %s role. Available tools: %s. Answer with what you have.",
			call.Tool, rt.role, strings.Join(rt.cfg.AllowedTools, ", "))
	}

	res := rt.tools.Execute(ctx, call.Tool, tools.Input{
		AgentID:    string(rt.role),
		WorkflowID: req.WorkflowID,
		UserID:     req.UserID,
		Context:    req.Context,
		Params:     call.Params,
	})

	rendered, err := json.Marshal(map[string]any{
		"tool":    call.Tool,
		"success": res.Success,
		"data":    res.Data,
		"errors":  res.Errors,
	})
	if err != nil {
		return fmt.Sprintf("Tool %s ran but its result could not be rendered: %v", call.Tool, err)
	}
	return "Tool result:\n" + string(rendered)
}

func (rt *Runtime) materializeContext(req TaskRequest) map[string]any {
	out := make(map[string]any, len(req.Context)+3)
	for k, v := range req.Context {
		out[k] = v
	}
	out["task_id"] = req.TaskID
	out["workflow_id"] = req.WorkflowID
	if req.InputData != nil {
		out["input_data"] = req.InputData
	}
	return out
}

func (rt *Runtime) systemPrompt(req TaskRequest) string {
	var b strings.Builder
	b.WriteString(rt.cfg.Backstory)
	b.WriteString("\n\nGoal: ")
	b.WriteString(rt.cfg.Goal)

	if len(rt.cfg.AllowedTools) > 0 {
		b.WriteString("\n\nYou may use these tools: ")
		b.WriteString(strings.Join(rt.cfg.AllowedTools, ", "))
		b.WriteString(`
To call a tool, respond with only a JSON object of the form {"tool": "<name>", "params": {...}}.
When you have the final answer, respond with the answer directly, not a tool call.`)
	}

	expected := req.ExpectedOutput
	if expected == "" {
		expected = rt.cfg.DefaultExpectedOutput
	}
	b.WriteString("\n\nExpected output: ")
	b.WriteString(expected)
	return b.String()
}

func (rt *Runtime) userPrompt(req TaskRequest, taskCtx map[string]any) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(req.Description)

	if len(taskCtx) > 0 {
		if rendered, err := json.Marshal(taskCtx); err == nil {
			b.WriteString("\n\nContext:\n")
			b.Write(rendered)
		}
	}
	return b.String()
}

type toolCall struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// parseToolCall scans model output for the first {"tool": ...} object.
// Surrounding prose and code fences are tolerated; anything without a
// decodable tool object is a direct answer.
func parseToolCall(content string) (*toolCall, bool) {
	idx := strings.Index(content, `{"tool"`)
	if idx < 0 {
		idx = strings.Index(content, `{ "tool"`)
	}
	if idx < 0 {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(content[idx:]))
	var call toolCall
	if err := dec.Decode(&call); err != nil || call.Tool == "" {
		return nil, false
	}
	return &call, true
}
