package models

import "time"

// Provider identifies a model provider family.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderLocal      Provider = "local"
)

// Message roles used across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelInfo describes one registered model.
type ModelInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Provider         Provider  `json:"provider"`
	CostPerToken     float64   `json:"cost_per_token"`
	ContextLength    int       `json:"context_length"`
	Capabilities     []string  `json:"capabilities,omitempty"`
	PerformanceScore float64   `json:"performance_score"`
	IsAvailable      bool      `json:"is_available"`
	LastHealthCheck  time.Time `json:"last_health_check,omitempty"`
}

// HasCapability reports whether the model declares the named capability.
func (m *ModelInfo) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ToolSpec describes a tool offered to the model for tool-calling.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ModelRequest is the provider-neutral request shape.
type ModelRequest struct {
	Messages        []Message  `json:"messages"`
	SystemPrompt    string     `json:"system_prompt,omitempty"`
	MaxTokens       int        `json:"max_tokens,omitempty"`
	Temperature     float64    `json:"temperature,omitempty"`
	Stream          bool       `json:"stream,omitempty"`
	Tools           []ToolSpec `json:"tools,omitempty"`
	ModelPreference string     `json:"model_preference,omitempty"`
}

// TokenUsage accounts tokens for one response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelResponse is the provider-neutral response shape. ProcessingTime is
// measured by the router, not the adapter.
type ModelResponse struct {
	Content        string         `json:"content"`
	ModelUsed      string         `json:"model_used"`
	Provider       Provider       `json:"provider"`
	Cost           float64        `json:"cost"`
	ProcessingTime time.Duration  `json:"processing_time"`
	TokenUsage     TokenUsage     `json:"token_usage"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
