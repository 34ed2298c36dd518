package agents

import (
	"context"

	"github.com/contractpilot/orchestrator/internal/memory"
)

// The store accessors below always pass the runtime's own role as the actor.
// Agent-scoped entries are therefore only reachable by the role that wrote
// them; cross-role sharing goes through shared contexts.

// StoreNote writes an agent-scoped note under this runtime's role.
func (rt *Runtime) StoreNote(ctx context.Context, identifier string, content any, workflowID string, tags ...string) (string, error) {
	return rt.store.Store(ctx, content, memory.TypeShortTerm, memory.ScopeAgent,
		string(rt.role)+":"+identifier,
		memory.StoreOptions{
			AgentID:    string(rt.role),
			WorkflowID: workflowID,
			Tags:       tags,
		})
}

// RecallNote reads back a note this role previously stored. Notes written by
// other roles live under their own role prefix and are not addressable here.
func (rt *Runtime) RecallNote(ctx context.Context, identifier string) (*memory.Entry, error) {
	return rt.store.Retrieve(ctx, memory.TypeShortTerm, memory.ScopeAgent,
		string(rt.role)+":"+identifier)
}

// SharedContext reads a shared context as this role. Access control is the
// store's allow-list check; denial is a nil return.
func (rt *Runtime) SharedContext(ctx context.Context, contextID string) (*memory.SharedContext, error) {
	return rt.store.GetSharedContext(ctx, contextID, string(rt.role))
}

// UpdateSharedContext merges updates into a shared context as this role.
func (rt *Runtime) UpdateSharedContext(ctx context.Context, contextID string, updates map[string]any) (*memory.SharedContext, error) {
	return rt.store.UpdateSharedContext(ctx, contextID, updates, string(rt.role))
}
