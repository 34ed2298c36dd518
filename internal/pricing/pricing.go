package pricing

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Table resolves per-token USD prices for models. Prices come from a
// models.yaml document; models absent from the table fall back to the
// configured default.
//
// models.yaml shape:
//
//	pricing:
//	  defaults:
//	    combined_per_1k: 0.002
//	  models:
//	    openai:
//	      gpt-4o-mini:
//	        combined_per_1k: 0.0004
//	    anthropic:
//	      claude-3-5-sonnet:
//	        input_per_1k: 0.003
//	        output_per_1k: 0.015
type Table struct {
	mu  sync.RWMutex
	cfg tableConfig
}

type tableConfig struct {
	Pricing struct {
		Defaults struct {
			CombinedPer1K float64 `yaml:"combined_per_1k"`
		} `yaml:"defaults"`
		Models map[string]map[string]modelPrice `yaml:"models"`
	} `yaml:"pricing"`
}

type modelPrice struct {
	InputPer1K    float64 `yaml:"input_per_1k"`
	OutputPer1K   float64 `yaml:"output_per_1k"`
	CombinedPer1K float64 `yaml:"combined_per_1k"`
}

// fallbackPerToken is used when no table or default is configured
// ($0.002 per 1K tokens).
const fallbackPerToken = 0.000002

// NewTable returns an empty table that serves only the built-in fallback.
func NewTable() *Table {
	return &Table{}
}

// LoadFile reads a models.yaml pricing document from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing config %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a models.yaml pricing document.
func Load(data []byte) (*Table, error) {
	var cfg tableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal pricing config: %w", err)
	}
	return &Table{cfg: cfg}, nil
}

// Reload swaps in a freshly parsed document.
func (t *Table) Reload(data []byte) error {
	var cfg tableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("unmarshal pricing config: %w", err)
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
	return nil
}

// DefaultPerToken returns the configured default combined price per token.
func (t *Table) DefaultPerToken() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cfg.Pricing.Defaults.CombinedPer1K > 0 {
		return t.cfg.Pricing.Defaults.CombinedPer1K / 1000.0
	}
	return fallbackPerToken
}

// PerTokenForModel returns the combined per-token price for a model when the
// table lists it. When only an input/output split is listed, the combined
// price is their average.
func (t *Table) PerTokenForModel(model string) (float64, bool) {
	if model == "" {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, group := range t.cfg.Pricing.Models {
		m, ok := group[model]
		if !ok {
			continue
		}
		if m.CombinedPer1K > 0 {
			return m.CombinedPer1K / 1000.0, true
		}
		if m.InputPer1K > 0 && m.OutputPer1K > 0 {
			return ((m.InputPer1K + m.OutputPer1K) / 2.0) / 1000.0, true
		}
	}
	return 0, false
}

// CostPerToken resolves the effective per-token price for a model, falling
// back to the default.
func (t *Table) CostPerToken(model string) float64 {
	if price, ok := t.PerTokenForModel(model); ok {
		return price
	}
	return t.DefaultPerToken()
}

// CostForTokens returns the USD cost of total tokens for a model. Negative
// counts are treated as zero.
func (t *Table) CostForTokens(model string, tokens int) float64 {
	if tokens < 0 {
		tokens = 0
	}
	return float64(tokens) * t.CostPerToken(model)
}

// CostForSplit computes cost from an input/output token split when the table
// carries split prices, falling back to combined pricing.
func (t *Table) CostForSplit(model string, inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	t.mu.RLock()
	for _, group := range t.cfg.Pricing.Models {
		if m, ok := group[model]; ok && m.InputPer1K > 0 && m.OutputPer1K > 0 {
			t.mu.RUnlock()
			return float64(inputTokens)*m.InputPer1K/1000.0 +
				float64(outputTokens)*m.OutputPer1K/1000.0
		}
	}
	t.mu.RUnlock()

	return t.CostForTokens(model, inputTokens+outputTokens)
}
