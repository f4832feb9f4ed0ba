package llm

import (
	"fmt"
	"strings"
)

// NewGenerator creates a generative provider based on configuration.
// An empty provider name returns (nil, nil): generation is disabled and
// callers fall back to deterministic extraction.
func NewGenerator(config Config) (Generator, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIGenerator(config)

	case "anthropic", "claude":
		return NewAnthropicGenerator(config)

	case "ollama":
		return NewOllamaGenerator(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}
