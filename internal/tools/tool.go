package tools

import (
	"context"
	"time"
)

// Category groups tools by the capability they provide.
type Category string

const (
	CategoryDocumentProcessing Category = "document_processing"
	CategoryDataExtraction     Category = "data_extraction"
	CategoryContractGeneration Category = "contract_generation"
	CategoryComplianceChecking Category = "compliance_checking"
	CategorySignatureTracking  Category = "signature_tracking"
	CategorySummarization      Category = "summarization"
	CategoryKnowledgeBase      Category = "knowledge_base"
	CategoryWorkflowManagement Category = "workflow_management"
)

// Input carries the actor identity and a free-form parameter map. Concrete
// tools read their specific fields from Params; unknown keys are ignored.
type Input struct {
	AgentID    string         `json:"agent_id,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// Param returns a string parameter, falling back to the context map.
func (in *Input) Param(key string) string {
	if v, ok := in.Params[key].(string); ok {
		return v
	}
	if v, ok := in.Context[key].(string); ok {
		return v
	}
	return ""
}

// ParamMap returns a map-valued parameter.
func (in *Input) ParamMap(key string) map[string]any {
	if v, ok := in.Params[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Result is the uniform outcome shape every tool produces.
type Result struct {
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	ToolName      string         `json:"tool_name"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Tool is a named, typed capability. Execute returns an error only for
// failures the tool cannot express as a Result; the registry converts either
// shape into a uniform failed Result.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Execute(ctx context.Context, input Input) (*Result, error)
}

// Summary is one row of a registry listing.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Class       string   `json:"class"`
}
