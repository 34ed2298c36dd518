package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/metrics"
	"github.com/contractpilot/orchestrator/internal/tracing"
)

// Registry is the catalog of registered tools. Every invocation goes through
// Execute, which wraps the tool call with timing, failure capture, logging,
// and a memory store summary so agent code never branches on tool identity.
type Registry struct {
	logger *zap.Logger
	store  *memory.Store

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry builds a registry. store may be nil; execution summaries are
// then skipped.
func NewRegistry(store *memory.Store, logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		store:  store,
		tools:  make(map[string]Tool),
	}
}

// Register inserts a tool by name. A duplicate name replaces the prior
// registration with a logged warning.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	_, existed := r.tools[tool.Name()]
	r.tools[tool.Name()] = tool
	r.mu.Unlock()

	if existed {
		r.logger.Warn("Replacing existing tool registration",
			zap.String("tool", tool.Name()))
	}
}

// Get returns the tool for a name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ByCategory returns every tool in one category, sorted by name.
func (r *Registry) ByCategory(cat Category) []Tool {
	r.mu.RLock()
	var out []Tool
	for _, t := range r.tools {
		if t.Category() == cat {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// List returns a summary of every registered tool, sorted by name.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Summary{
			Name:        t.Name(),
			Description: t.Description(),
			Category:    t.Category(),
			Class:       fmt.Sprintf("%T", t),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one tool through the uniform wrapper. It never returns a Go
// error: unknown tools, tool errors, and panics all synthesize a failed
// Result so the caller sees one shape.
func (r *Registry) Execute(ctx context.Context, name string, input Input) *Result {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "tool."+name)
	defer span.End()

	tool, ok := r.Get(name)
	if !ok {
		return r.finish(ctx, name, "", input, &Result{
			Success: false,
			Errors:  []string{fmt.Sprintf("tool not found: %s", name)},
		}, started)
	}

	r.logger.Info("Tool execution started",
		zap.String("tool", name),
		zap.String("agent_id", input.AgentID),
		zap.String("workflow_id", input.WorkflowID),
	)

	result := r.invoke(ctx, tool, input)
	return r.finish(ctx, name, tool.Category(), input, result, started)
}

// invoke calls the tool, converting errors and panics into failed results.
func (r *Registry) invoke(ctx context.Context, tool Tool, input Input) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &Result{
				Success: false,
				Errors:  []string{fmt.Sprintf("tool panicked: %v", rec)},
			}
		}
	}()

	res, err := tool.Execute(ctx, input)
	if err != nil {
		return &Result{Success: false, Errors: []string{err.Error()}}
	}
	if res == nil {
		return &Result{Success: false, Errors: []string{"tool returned no result"}}
	}
	return res
}

func (r *Registry) finish(ctx context.Context, name string, cat Category, input Input, result *Result, started time.Time) *Result {
	result.ToolName = name
	result.Timestamp = started
	result.ExecutionTime = time.Since(started)

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ToolExecutions.WithLabelValues(name, outcome).Inc()
	metrics.ToolExecutionDuration.WithLabelValues(name).Observe(result.ExecutionTime.Seconds())

	r.logger.Info("Tool execution finished",
		zap.String("tool", name),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.ExecutionTime),
		zap.Int("errors", len(result.Errors)),
	)

	r.writeSummary(ctx, name, cat, input, result)
	return result
}

// writeSummary records one workflow-scoped memory entry per invocation. Only
// shape metadata is stored, never raw tool output; full results stay with
// the caller.
func (r *Registry) writeSummary(ctx context.Context, name string, cat Category, input Input, result *Result) {
	if r.store == nil {
		return
	}

	keys := make([]string, 0, len(result.Data))
	for k := range result.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := map[string]any{
		"tool_name":   name,
		"category":    string(cat),
		"result_keys": keys,
		"error_count": len(result.Errors),
		"duration_ms": result.ExecutionTime.Milliseconds(),
		"success":     result.Success,
	}

	identifier := fmt.Sprintf("tool_exec_%s_%d", name, result.Timestamp.UnixNano())
	_, err := r.store.Store(ctx, summary, memory.TypeWorkflow, memory.ScopeWorkflow, identifier,
		memory.StoreOptions{
			AgentID:    input.AgentID,
			WorkflowID: input.WorkflowID,
			UserID:     input.UserID,
			Tags:       []string{"tool_execution", string(cat)},
		})
	if err != nil {
		r.logger.Warn("Failed to record tool execution summary",
			zap.String("tool", name), zap.Error(err))
	}
}
