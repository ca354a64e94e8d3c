package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/config"
)

// Factory creates LLM clients from application configuration.
type Factory struct {
	cfg    *config.AIConfig
	logger *zap.Logger
}

// NewFactory creates a factory bound to the AI configuration.
func NewFactory(cfg *config.AIConfig, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateChatClient creates the chat-completion client for the configured
// provider.
func (f *Factory) CreateChatClient() (Client, error) {
	switch f.cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(&OpenAIConfig{
			Endpoint:       f.cfg.LLMBaseURL,
			Model:          f.cfg.LLMModel,
			EmbeddingModel: f.cfg.EmbeddingModel,
			APIKey:         f.cfg.OpenAIAPIKey,
		}, f.logger)
	case "anthropic":
		return NewAnthropicClient(&AnthropicConfig{
			APIKey: f.cfg.AnthropicAPIKey,
			Model:  f.cfg.AnthropicModel,
		}, f.logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", f.cfg.Provider)
	}
}

// CreateEmbeddingClient creates the embedding client. Embeddings always go
// through an OpenAI-compatible endpoint regardless of the chat provider.
func (f *Factory) CreateEmbeddingClient() (Client, error) {
	return NewOpenAIClient(&OpenAIConfig{
		Endpoint:       f.cfg.EffectiveEmbeddingBaseURL(),
		Model:          f.cfg.LLMModel,
		EmbeddingModel: f.cfg.EmbeddingModel,
		APIKey:         f.cfg.OpenAIAPIKey,
	}, f.logger)
}
