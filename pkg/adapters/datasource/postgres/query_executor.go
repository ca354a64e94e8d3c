package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// QueryExecutor runs generated SQL against a PostgreSQL target.
type QueryExecutor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewQueryExecutor connects to the target database.
func NewQueryExecutor(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (*QueryExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &QueryExecutor{
		pool:   pool,
		logger: logger.Named("postgres-executor"),
	}, nil
}

// Query runs a SELECT statement and returns typed rows.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	rows, err := e.pool.Query(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]datasource.ResultColumn, len(fields))
	for i, f := range fields {
		columns[i] = datasource.ResultColumn{
			Name:     f.Name,
			TypeName: typeNameForOID(e.pool, f.DataTypeOID),
		}
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     result,
		RowCount: len(result),
	}, nil
}

// Validate runs EXPLAIN on the statement so the planner checks syntax and
// object references without executing anything.
func (e *QueryExecutor) Validate(ctx context.Context, sqlQuery string) error {
	rows, err := e.pool.Query(ctx, "EXPLAIN "+sqlQuery)
	if err != nil {
		return err
	}
	rows.Close()
	return rows.Err()
}

// QuoteIdentifier quotes an identifier in PostgreSQL dialect.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Close releases the pool.
func (e *QueryExecutor) Close() error {
	e.pool.Close()
	return nil
}

// typeNameForOID resolves a friendly type name from the connection's type
// map, falling back to the numeric OID.
func typeNameForOID(pool *pgxpool.Pool, oid uint32) string {
	conn, err := pool.Acquire(context.Background())
	if err != nil {
		return fmt.Sprintf("oid(%d)", oid)
	}
	defer conn.Release()

	if t, ok := conn.Conn().TypeMap().TypeForOID(oid); ok {
		return t.Name
	}
	return fmt.Sprintf("oid(%d)", oid)
}

// normalizeValue converts pgx-specific values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		// UUIDs scan as byte arrays without a registered codec.
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	default:
		return v
	}
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
