package models

import "strings"

// DetectProvider infers the provider family from a model name. Used when a
// registry entry omits the provider field, e.g. models loaded from plain
// name lists. Explicit registry entries always win.
func DetectProvider(model string) Provider {
	ml := strings.ToLower(model)

	switch {
	case strings.Contains(ml, "gpt-"), strings.Contains(ml, "o1"),
		strings.Contains(ml, "o3"), strings.Contains(ml, "davinci"):
		return ProviderOpenAI
	case strings.Contains(ml, "claude"), strings.Contains(ml, "opus"),
		strings.Contains(ml, "sonnet"), strings.Contains(ml, "haiku"):
		return ProviderAnthropic
	case strings.Contains(ml, "llama"), strings.Contains(ml, "mistral"),
		strings.Contains(ml, "qwen"), strings.Contains(ml, "phi"):
		return ProviderLocal
	case strings.Contains(ml, "/"):
		// Slash-qualified names follow the aggregator convention,
		// e.g. "meta-llama/llama-3-70b-instruct".
		return ProviderOpenRouter
	default:
		return ProviderOpenRouter
	}
}
