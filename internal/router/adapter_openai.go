package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/contractpilot/orchestrator/internal/models"
)

// openAICompatAdapter speaks the unified chat-completions protocol. It covers
// both the aggregator (OpenRouter) and the native OpenAI endpoint; the two
// differ only in base URL, credentials, and the provider they report.
type openAICompatAdapter struct {
	provider models.Provider
	baseURL  string
	apiKey   string
	client   httpDoer
}

// NewAggregatorAdapter builds the adapter for an OpenRouter-style aggregator.
func NewAggregatorAdapter(baseURL, apiKey string) Adapter {
	return &openAICompatAdapter{
		provider: models.ProviderOpenRouter,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   defaultHTTPClient(),
	}
}

// NewOpenAIAdapter builds the adapter for the native OpenAI endpoint.
func NewOpenAIAdapter(baseURL, apiKey string) Adapter {
	return &openAICompatAdapter{
		provider: models.ProviderOpenAI,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   defaultHTTPClient(),
	}
}

type chatCompletionsRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *openAICompatAdapter) Provider() models.Provider { return a.provider }

func (a *openAICompatAdapter) Invoke(ctx context.Context, model *models.ModelInfo, req *models.ModelRequest) (*AdapterResult, error) {
	msgs := req.Messages
	if req.SystemPrompt != "" {
		msgs = append([]models.Message{{Role: models.RoleSystem, Content: req.SystemPrompt}}, msgs...)
	}

	body, err := json.Marshal(chatCompletionsRequest{
		Model:       model.Name,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", a.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", a.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", a.provider, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", a.provider, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", a.provider)
	}

	return &AdapterResult{
		Content: parsed.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		Metadata: map[string]any{
			"finish_reason": parsed.Choices[0].FinishReason,
		},
	}, nil
}

// HealthCheck issues a minimal one-token completion. Cloud providers expose
// no dedicated ping endpoint.
func (a *openAICompatAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s health check: %w", a.provider, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s health check returned %d", a.provider, resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
