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

// localAdapter talks to an Ollama-compatible local server. Local inference is
// free and reports no usage, so token counts are approximated from the word
// count with a 0.7/0.3 prompt/completion split.
type localAdapter struct {
	baseURL string
	client  httpDoer
}

// NewLocalAdapter builds the adapter for a local HTTP inference server.
func NewLocalAdapter(baseURL string) Adapter {
	return &localAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(),
	}
}

type localChatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type localChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (a *localAdapter) Provider() models.Provider { return models.ProviderLocal }

func (a *localAdapter) Invoke(ctx context.Context, model *models.ModelInfo, req *models.ModelRequest) (*AdapterResult, error) {
	msgs := req.Messages
	if req.SystemPrompt != "" {
		msgs = append([]models.Message{{Role: models.RoleSystem, Content: req.SystemPrompt}}, msgs...)
	}

	payload := localChatRequest{
		Model:    model.Name,
		Messages: msgs,
		Stream:   false,
	}
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal local chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("local request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read local response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local server returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed localChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode local response: %w", err)
	}

	return &AdapterResult{
		Content: parsed.Message.Content,
		Usage:   approximateUsage(parsed.Message.Content),
	}, nil
}

// approximateUsage estimates tokens as words x 1.3, split 0.7 prompt /
// 0.3 completion.
func approximateUsage(content string) models.TokenUsage {
	total := int(float64(len(strings.Fields(content))) * 1.3)
	prompt := int(float64(total) * 0.7)
	return models.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: total - prompt,
		TotalTokens:      total,
	}
}

// HealthCheck lists local tags; the endpoint is cheap and requires no model
// to be loaded.
func (a *localAdapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("local health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("local health check returned %d", resp.StatusCode)
	}
	return nil
}
