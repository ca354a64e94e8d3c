package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// QueryExecutor runs generated SQL against a SQL Server target.
type QueryExecutor struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQueryExecutor connects to the target database.
func NewQueryExecutor(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (*QueryExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	return &QueryExecutor{
		db:     db,
		logger: logger.Named("mssql-executor"),
	}, nil
}

// Query runs a SELECT statement and returns typed rows.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	columns := make([]datasource.ResultColumn, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = datasource.ResultColumn{
			Name:     ct.Name(),
			TypeName: ct.DatabaseTypeName(),
		}
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row := make(map[string]any, len(colTypes))
		for i, ct := range colTypes {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[ct.Name()] = v
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

// Validate asks the server to parse the statement without executing it via
// SET PARSEONLY.
func (e *QueryExecutor) Validate(ctx context.Context, sqlQuery string) error {
	_, err := e.db.ExecContext(ctx, "SET PARSEONLY ON; "+sqlQuery+"; SET PARSEONLY OFF;")
	return err
}

// QuoteIdentifier quotes an identifier in SQL Server dialect.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// Close releases the connection.
func (e *QueryExecutor) Close() error {
	return e.db.Close()
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
