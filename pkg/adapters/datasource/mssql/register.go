package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2017+ and Azure SQL",
		},
		SchemaDiscovererFactory: func(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(ctx, cfg, logger)
		},
		QueryExecutorFactory: func(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(ctx, cfg, logger)
		},
	})
}
