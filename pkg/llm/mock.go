package llm

import (
	"context"
	"sync"
)

// MockClient is a configurable mock implementation of Client for testing.
// Set the function fields to control behavior; call counters track usage.
type MockClient struct {
	mu sync.Mutex

	GenerateResponseFunc func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)
	CreateEmbeddingFunc  func(ctx context.Context, input string) ([]float32, error)
	CreateEmbeddingsFunc func(ctx context.Context, inputs []string) ([][]float32, error)
	ModelName            string

	GenerateResponseCalls int
	CreateEmbeddingCalls  int
	CreateEmbeddingsCalls int

	// Prompts records every prompt passed to GenerateResponse.
	Prompts []string
}

// NewMockClient creates a mock with benign defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

func (m *MockClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
	m.mu.Lock()
	m.GenerateResponseCalls++
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()

	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return "", nil
}

func (m *MockClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.mu.Lock()
	m.CreateEmbeddingCalls++
	m.mu.Unlock()

	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input)
	}
	return make([]float32, 4), nil
}

func (m *MockClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	m.CreateEmbeddingsCalls++
	m.mu.Unlock()

	if m.CreateEmbeddingsFunc != nil {
		return m.CreateEmbeddingsFunc(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (m *MockClient) Model() string {
	return m.ModelName
}

var _ Client = (*MockClient)(nil)
