package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/retry"
)

// AnthropicClient provides chat completions through the Anthropic Messages API.
// Anthropic has no embedding endpoint; embedding calls return an error, and
// the factory pairs this client with an OpenAI-compatible embedding client.
type AnthropicClient struct {
	client   *anthropic.Client
	model    string
	retryCfg *retry.Config
	logger   *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic client.
type AnthropicConfig struct {
	APIKey string
	Model  string // e.g. "claude-sonnet-4-20250514"
}

// NewAnthropicClient creates a new Anthropic chat client.
func NewAnthropicClient(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(cfg.APIKey),
		model:    cfg.Model,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("llm-anthropic"),
	}, nil
}

// GenerateResponse generates a chat completion response.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	temp := float32(temperature)

	start := time.Now()
	resp, err := retry.DoWithResult(ctx, c.retryCfg, func() (anthropic.MessagesResponse, error) {
		r, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:       anthropic.Model(c.model),
			MaxTokens:   4096,
			System:      systemMessage,
			Temperature: &temp,
			Messages: []anthropic.Message{
				anthropic.NewUserTextMessage(prompt),
			},
		})
		if err != nil {
			return r, ClassifyError(err)
		}
		return r, nil
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Content[0].GetText(), nil
}

// CreateEmbedding is not supported by the Anthropic provider.
func (c *AnthropicClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings")
}

// CreateEmbeddings is not supported by the Anthropic provider.
func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings")
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Ensure AnthropicClient implements Client at compile time.
var _ Client = (*AnthropicClient)(nil)
