package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// SchemaDiscoverer provides SQL Server schema discovery.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer connects to the target database.
func NewSchemaDiscoverer(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (*SchemaDiscoverer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	return &SchemaDiscoverer{
		db:     db,
		logger: logger.Named("mssql-discoverer"),
	}, nil
}

// Ping verifies connectivity.
func (s *SchemaDiscoverer) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection.
func (s *SchemaDiscoverer) Close() error {
	return s.db.Close()
}

// DiscoverTables returns all user tables with partition row counts.
func (s *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableInfo, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    SUM(p.rows) AS row_count
	FROM sys.tables t
	INNER JOIN sys.partitions p ON t.object_id = p.object_id
	WHERE p.index_id IN (0, 1)
	  AND t.is_ms_shipped = 0
	GROUP BY t.schema_id, t.name
	ORDER BY table_schema, table_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableInfo
	for rows.Next() {
		var t datasource.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCountEstimate); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for one table in ordinal order.
func (s *SchemaDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnInfo, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    CASE WHEN uq.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_unique,
	    c.column_id AS ordinal_position
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_unique = 1 AND i.is_primary_key = 0
	) uq ON c.object_id = uq.object_id AND c.column_id = uq.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnInfo
	for rows.Next() {
		var col datasource.ColumnInfo
		var isNullable, isPrimary, isUnique int

		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &isPrimary, &isUnique, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}

		col.IsNullable = isNullable == 1
		col.IsPrimaryKey = isPrimary == 1
		col.IsUnique = isUnique == 1
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}

// DiscoverForeignKeys returns all foreign-key relationships.
func (s *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyInfo, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    SCHEMA_NAME(fk.schema_id) AS source_schema,
	    OBJECT_NAME(fk.parent_object_id) AS source_table,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id) AS source_column,
	    SCHEMA_NAME(rt.schema_id) AS target_schema,
	    OBJECT_NAME(fk.referenced_object_id) AS target_table,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id) AS target_column,
	    CASE WHEN uq.column_id IS NOT NULL THEN 1 ELSE 0 END AS source_is_unique
	FROM sys.foreign_keys fk
	INNER JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
	INNER JOIN sys.tables rt ON fk.referenced_object_id = rt.object_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_unique = 1
	) uq ON fkc.parent_object_id = uq.object_id AND fkc.parent_column_id = uq.column_id
	WHERE fk.is_ms_shipped = 0
	ORDER BY source_schema, source_table, fk.name, fkc.constraint_column_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyInfo
	for rows.Next() {
		var fk datasource.ForeignKeyInfo
		var srcUnique int

		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn, &srcUnique); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		fk.SourceIsUnique = srcUnique == 1
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return fks, nil
}

// AnalyzeColumnStats profiles distinct and null counts per column. A
// failing column yields zero stats instead of aborting the table.
func (s *SchemaDiscoverer) AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]datasource.ColumnStats, error) {
	if len(columnNames) == 0 {
		return nil, nil
	}

	qualified := qualifiedTableName(schemaName, tableName)
	stats := make([]datasource.ColumnStats, 0, len(columnNames))

	for _, col := range columnNames {
		quotedCol := quoteIdentifier(col)
		query := fmt.Sprintf(`
		SET NOCOUNT ON;
		SELECT
		    COUNT_BIG(*) AS total_count,
		    COUNT_BIG(DISTINCT %s) AS distinct_count,
		    COUNT_BIG(*) - COUNT_BIG(%s) AS null_count
		FROM %s
		`, quotedCol, quotedCol, qualified)

		var st datasource.ColumnStats
		st.ColumnName = col
		if err := s.db.QueryRowContext(ctx, query).Scan(&st.TotalCount, &st.DistinctCount, &st.NullCount); err != nil {
			s.logger.Warn("column stats failed",
				zap.String("table", tableName),
				zap.String("column", col),
				zap.Error(err))
			stats = append(stats, st)
			continue
		}
		if st.TotalCount > 0 {
			st.NullPct = float64(st.NullCount) / float64(st.TotalCount)
		}
		stats = append(stats, st)
	}

	return stats, nil
}

// GetDistinctValues returns up to limit distinct non-null values, sorted.
func (s *SchemaDiscoverer) GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	quotedCol := quoteIdentifier(columnName)
	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(400)) AS val
	FROM %s
	WHERE %s IS NOT NULL
	ORDER BY val
	`, limit, quotedCol, qualifiedTableName(schemaName, tableName), quotedCol)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}

	return values, nil
}

// ExactRowCount counts rows in a table.
func (s *SchemaDiscoverer) ExactRowCount(ctx context.Context, schemaName, tableName string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", qualifiedTableName(schemaName, tableName))

	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
