// Package datasource defines the adapter interfaces for target databases.
// Each driver lives in its own subpackage and registers itself via init().
package datasource

import "context"

// ConnectionConfig holds the coordinates and credentials for one target
// database.
type ConnectionConfig struct {
	Type     string `json:"type" yaml:"type"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"-" env:"TARGET_DB_PASSWORD"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode"`
}

// TableInfo is a raw table row from catalog discovery.
type TableInfo struct {
	Schema           string `json:"schema"`
	Name             string `json:"name"`
	RowCountEstimate int64  `json:"row_count_estimate"`
}

// ColumnInfo is a raw column row from catalog discovery.
type ColumnInfo struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	IsNullable      bool   `json:"is_nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key"`
	IsUnique        bool   `json:"is_unique"`
	OrdinalPosition int    `json:"ordinal_position"`
	DefaultValue    *string
}

// ForeignKeyInfo is a raw foreign-key edge from catalog discovery.
type ForeignKeyInfo struct {
	ConstraintName string `json:"constraint_name"`
	SourceSchema   string `json:"source_schema"`
	SourceTable    string `json:"source_table"`
	SourceColumn   string `json:"source_column"`
	TargetSchema   string `json:"target_schema"`
	TargetTable    string `json:"target_table"`
	TargetColumn   string `json:"target_column"`
	// TargetIsUnique is true when the referenced column carries a unique
	// or primary-key constraint, which makes the edge one-to-one when the
	// source column is unique too.
	SourceIsUnique bool `json:"source_is_unique"`
}

// ColumnStats is the value profile gathered for one column.
type ColumnStats struct {
	ColumnName    string  `json:"column_name"`
	TotalCount    int64   `json:"total_count"`
	DistinctCount int64   `json:"distinct_count"`
	NullCount     int64   `json:"null_count"`
	NullPct       float64 `json:"null_pct"`
}

// ResultColumn describes one output column of an executed query.
type ResultColumn struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

// QueryExecutionResult holds rows from a successful query.
type QueryExecutionResult struct {
	Columns  []ResultColumn   `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// SchemaDiscoverer extracts schema metadata from a target database.
// Each implementation owns its connection and must be closed when done.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables, excluding system schemas.
	DiscoverTables(ctx context.Context) ([]TableInfo, error)

	// DiscoverColumns returns columns for one table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnInfo, error)

	// DiscoverForeignKeys returns all foreign-key relationships.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyInfo, error)

	// AnalyzeColumnStats profiles distinct/null counts for the named
	// columns. Per-column failures are tolerated; failed columns come
	// back with zero stats.
	AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]ColumnStats, error)

	// GetDistinctValues returns up to limit distinct non-null values as
	// strings, sorted.
	GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error)

	// ExactRowCount counts the rows in a table. Slower than the catalog
	// estimate but exact; used for small tables.
	ExactRowCount(ctx context.Context, schemaName, tableName string) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// QueryExecutor runs generated SQL against a target database.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement and returns typed rows. The caller is
	// responsible for bounding the query with a row limit first.
	Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error)

	// Validate checks the statement against the database planner without
	// executing it.
	Validate(ctx context.Context, sqlQuery string) error

	// QuoteIdentifier quotes a table or column name in the target dialect.
	QuoteIdentifier(name string) string

	// Close releases any resources held by the executor.
	Close() error
}
