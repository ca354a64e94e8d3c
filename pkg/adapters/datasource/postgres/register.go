package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+",
		},
		SchemaDiscovererFactory: func(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(ctx, cfg, logger)
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg, logger)
		},
	})
}
