package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/models"
	"github.com/contractpilot/orchestrator/internal/router"
)

// decodeContent normalizes a memory entry's content into out. Entries served
// from the local cache hold the original Go value; entries rehydrated from
// the peer hold generic JSON maps. A JSON round trip covers both.
func decodeContent(content any, out any) {
	raw, err := json.Marshal(content)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, out)
}

// SummaryWriter condenses text through the model router. It carries no model
// choice of its own beyond an optional preference parameter; routing policy
// decides which model does the work.
type SummaryWriter struct {
	router *router.Router
}

func NewSummaryWriter(r *router.Router) *SummaryWriter {
	return &SummaryWriter{router: r}
}

func (t *SummaryWriter) Name() string        { return "summary_writer" }
func (t *SummaryWriter) Category() Category  { return CategorySummarization }
func (t *SummaryWriter) Description() string {
	return "Produces a concise summary of contract or transaction text"
}

func (t *SummaryWriter) Execute(ctx context.Context, input Input) (*Result, error) {
	text := input.Param("text")
	if text == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: text"}}, nil
	}
	audience := input.Param("audience")
	if audience == "" {
		audience = "client"
	}

	resp, err := t.router.GenerateResponse(ctx, &models.ModelRequest{
		SystemPrompt: "You summarize real estate transaction documents. Be factual and concise. " +
			"Write for the stated audience and never invent terms that are not in the source text.",
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("Audience: %s\n\nSummarize the following:\n\n%s", audience, text),
		}},
		MaxTokens:       1024,
		Temperature:     0.3,
		ModelPreference: input.Param("model_preference"),
	})
	if err != nil {
		return &Result{Success: false, Errors: []string{fmt.Sprintf("summarization failed: %v", err)}}, nil
	}

	return &Result{
		Success: true,
		Data: map[string]any{
			"summary":  resp.Content,
			"audience": audience,
		},
		Metadata: map[string]any{
			"model_used":  resp.ModelUsed,
			"tokens_used": resp.TokenUsage.TotalTokens,
			"cost_usd":    resp.Cost,
		},
	}, nil
}

// KnowledgeLookup searches long-term memory for previously stored reference
// material: clause libraries, jurisdiction notes, prior extraction results.
type KnowledgeLookup struct {
	store *memory.Store
}

func NewKnowledgeLookup(store *memory.Store) *KnowledgeLookup {
	return &KnowledgeLookup{store: store}
}

func (t *KnowledgeLookup) Name() string        { return "knowledge_lookup" }
func (t *KnowledgeLookup) Category() Category  { return CategoryKnowledgeBase }
func (t *KnowledgeLookup) Description() string {
	return "Searches long-term memory for stored reference material"
}

func (t *KnowledgeLookup) Execute(ctx context.Context, input Input) (*Result, error) {
	tag := input.Param("tag")
	identifier := input.Param("identifier")
	if tag == "" && identifier == "" {
		return &Result{Success: false, Errors: []string{"one of tag or identifier is required"}}, nil
	}

	var entries []*memory.Entry
	if identifier != "" {
		entry, err := t.store.Retrieve(ctx, memory.TypeLongTerm, memory.ScopeGlobal, identifier)
		if err != nil {
			return &Result{Success: false, Errors: []string{fmt.Sprintf("knowledge lookup: %v", err)}}, nil
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	} else {
		query := memory.SearchQuery{MemoryType: memory.TypeLongTerm, Tags: []string{tag}}
		entries = t.store.Search(query, 10)
	}

	matches := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, map[string]any{
			"identifier": e.Identifier,
			"content":    e.Content,
			"tags":       e.Tags,
			"created_at": e.CreatedAt,
		})
	}

	return &Result{
		Success: true,
		Data: map[string]any{
			"matches":     matches,
			"match_count": len(matches),
		},
	}, nil
}
