package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/retry"
)

// OpenAIClient provides access to OpenAI-compatible chat and embedding endpoints.
type OpenAIClient struct {
	client         *openai.Client
	endpoint       string
	model          string
	embeddingModel string
	retryCfg       *retry.Config
	logger         *zap.Logger
}

// OpenAIConfig holds configuration for creating an OpenAI-compatible client.
type OpenAIConfig struct {
	Endpoint       string // Base URL, e.g. "https://api.openai.com/v1"
	Model          string // Chat model, e.g. "gpt-4o"
	EmbeddingModel string // Embedding model, e.g. "text-embedding-3-small"
	APIKey         string // Optional for local endpoints
}

// NewOpenAIClient creates a new OpenAI-compatible LLM client.
func NewOpenAIClient(cfg *OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" && cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		endpoint:       cfg.Endpoint,
		model:          cfg.Model,
		embeddingModel: embeddingModel,
		retryCfg:       retry.DefaultConfig(),
		logger:         logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a chat completion response.
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()

	resp, err := retry.DoWithResult(ctx, c.retryCfg, func() (openai.ChatCompletionResponse, error) {
		r, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: float32(temperature),
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

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// CreateEmbedding generates an embedding vector for the input text.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	resp, err := retry.DoWithResult(ctx, c.retryCfg, func() (openai.EmbeddingResponse, error) {
		r, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: []string{input},
		})
		if err != nil {
			return r, ClassifyError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return resp.Data[0].Embedding, nil
}

// CreateEmbeddings generates embeddings for multiple inputs.
func (c *OpenAIClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := retry.DoWithResult(ctx, c.retryCfg, func() (openai.EmbeddingResponse, error) {
		r, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: inputs,
		})
		if err != nil {
			return r, ClassifyError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	return embeddings, nil
}

// Model returns the configured chat model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Ensure OpenAIClient implements Client at compile time.
var _ Client = (*OpenAIClient)(nil)
