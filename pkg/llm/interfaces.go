// Package llm provides chat-completion and embedding clients for the agents.
package llm

import (
	"context"
)

// Client defines the interface for LLM operations used by the agents.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs in one call.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)

	// Model returns the configured model name.
	Model() string
}
