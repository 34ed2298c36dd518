package memory

import (
	"time"
)

// Type classifies how long an entry is expected to live.
type Type string

const (
	TypeShortTerm Type = "short_term"
	TypeLongTerm  Type = "long_term"
	TypeShared    Type = "shared"
	TypeWorkflow  Type = "workflow"
)

// Scope classifies who an entry belongs to.
type Scope string

const (
	ScopeAgent    Scope = "agent"
	ScopeWorkflow Scope = "workflow"
	ScopeGlobal   Scope = "global"
	ScopeUser     Scope = "user"
)

// Entry is one stored memory record. Content is opaque to the store.
type Entry struct {
	ID           string    `json:"id"`
	Content      any       `json:"content"`
	MemoryType   Type      `json:"memory_type"`
	Scope        Scope     `json:"scope"`
	Identifier   string    `json:"identifier"`
	AgentID      string    `json:"agent_id,omitempty"`
	WorkflowID   string    `json:"workflow_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
}

// Expired reports whether the entry's TTL has lapsed at the given instant.
// A zero ExpiresAt never expires.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// StoreOptions carries the optional attributes of a store call.
type StoreOptions struct {
	AgentID    string
	WorkflowID string
	UserID     string
	Tags       []string
	// TTL overrides the per-type default when positive.
	TTL time.Duration
}

// SearchQuery filters entries; zero-valued fields are ignored. Tags match when
// the entry carries at least one of the query's tags.
type SearchQuery struct {
	MemoryType Type
	Scope      Scope
	AgentID    string
	WorkflowID string
	UserID     string
	Tags       []string
}

// Stats summarizes store contents for observability.
type Stats struct {
	ByType           map[Type]int  `json:"by_type"`
	ByScope          map[Scope]int `json:"by_scope"`
	Total            int           `json:"total"`
	DurableConnected bool          `json:"durable_connected"`
}

// ContextModification is one history record of a shared context mutation.
type ContextModification struct {
	AgentID    string         `json:"agent_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Changes    map[string]any `json:"changes"`
	NewVersion int            `json:"new_version"`
}

// SharedContext is a named, versioned map visible to an allow-list of agents.
// An empty AccessAgents list means every agent may read and write.
type SharedContext struct {
	ContextID           string                `json:"context_id"`
	Data                map[string]any        `json:"data"`
	AccessAgents        []string              `json:"access_agents,omitempty"`
	Version             int                   `json:"version"`
	LastModified        time.Time             `json:"last_modified"`
	ModificationHistory []ContextModification `json:"modification_history,omitempty"`
}

func (sc *SharedContext) allows(agentID string) bool {
	if len(sc.AccessAgents) == 0 {
		return true
	}
	for _, a := range sc.AccessAgents {
		if a == agentID {
			return true
		}
	}
	return false
}

// clone returns a deep-enough copy for handing out to callers: the maps and
// slices are fresh, the values inside Data stay shared.
func (sc *SharedContext) clone() *SharedContext {
	out := &SharedContext{
		ContextID:    sc.ContextID,
		Data:         make(map[string]any, len(sc.Data)),
		AccessAgents: append([]string(nil), sc.AccessAgents...),
		Version:      sc.Version,
		LastModified: sc.LastModified,
	}
	for k, v := range sc.Data {
		out.Data[k] = v
	}
	out.ModificationHistory = append([]ContextModification(nil), sc.ModificationHistory...)
	return out
}
