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

const anthropicVersion = "2023-06-01"

// anthropicAdapter speaks the native Anthropic messages protocol: the system
// prompt moves to its dedicated field and token usage arrives as an
// input/output split.
type anthropicAdapter struct {
	baseURL string
	apiKey  string
	client  httpDoer
}

// NewAnthropicAdapter builds the adapter for the native Anthropic endpoint.
func NewAnthropicAdapter(baseURL, apiKey string) Adapter {
	return &anthropicAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  defaultHTTPClient(),
	}
}

type anthropicRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *anthropicAdapter) Provider() models.Provider { return models.ProviderAnthropic }

func (a *anthropicAdapter) Invoke(ctx context.Context, model *models.ModelInfo, req *models.ModelRequest) (*AdapterResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// System turns embedded in the message list are hoisted into the
	// dedicated field; the API rejects system-role messages.
	system := req.SystemPrompt
	msgs := make([]models.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		msgs = append(msgs, m)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model.Name,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	in, out := parsed.Usage.InputTokens, parsed.Usage.OutputTokens
	return &AdapterResult{
		Content: text.String(),
		Usage: models.TokenUsage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		Metadata: map[string]any{
			"stop_reason": parsed.StopReason,
		},
	}, nil
}

func (a *anthropicAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("anthropic health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("anthropic health check returned %d", resp.StatusCode)
	}
	return nil
}
