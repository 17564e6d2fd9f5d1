package llm

import (
	"fmt"

	"github.com/cukesight/backend/internal/config"
)

// NewEmbedder builds the configured embedding backend.
func NewEmbedder(cfg config.LLMConfig, dimension int) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, dimension, cfg.Timeout), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, dimension, cfg.Timeout), nil
	case "hash":
		return NewHashEmbedder(dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.EmbeddingProvider)
	}
}

// NewGenerator builds the configured generation backend.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.Timeout), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.ChatModel, cfg.Timeout), nil
	case "ollama":
		return NewOllamaGenerator(cfg.OllamaURL, cfg.ChatModel, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
