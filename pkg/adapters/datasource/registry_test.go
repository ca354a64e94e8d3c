package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAndLookup(t *testing.T) {
	Register(Registration{
		Info: AdapterInfo{Type: "fake", DisplayName: "Fake DB"},
		SchemaDiscovererFactory: func(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (SchemaDiscoverer, error) {
			return nil, nil
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *ConnectionConfig, logger *zap.Logger) (QueryExecutor, error) {
			return nil, nil
		},
	})

	assert.True(t, IsRegistered("fake"))
	assert.False(t, IsRegistered("nope"))

	found := false
	for _, info := range RegisteredAdapters() {
		if info.Type == "fake" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnknownTypeErrors(t *testing.T) {
	cfg := &ConnectionConfig{Type: "not-a-driver"}

	_, err := NewSchemaDiscoverer(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown datasource type")

	_, err = NewQueryExecutor(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
