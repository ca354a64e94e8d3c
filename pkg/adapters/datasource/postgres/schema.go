package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// SchemaDiscoverer provides PostgreSQL schema discovery.
type SchemaDiscoverer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSchemaDiscoverer connects to the target database and returns a
// discoverer that owns the pool.
func NewSchemaDiscoverer(ctx context.Context, cfg *datasource.ConnectionConfig, logger *zap.Logger) (*SchemaDiscoverer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &SchemaDiscoverer{
		pool:   pool,
		logger: logger.Named("postgres-discoverer"),
	}, nil
}

// Ping verifies connectivity.
func (d *SchemaDiscoverer) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the pool.
func (d *SchemaDiscoverer) Close() error {
	d.pool.Close()
	return nil
}

// DiscoverTables returns all user tables with planner row estimates.
// reltuples is an estimate maintained by autovacuum; small tables get an
// exact count later.
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableInfo, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableInfo
	for rows.Next() {
		var t datasource.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCountEstimate); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if t.RowCountEstimate < 0 {
			t.RowCountEstimate = 0
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DiscoverColumns returns columns for one table. Primary key and unique
// detection goes through pg_index, which catches keys created as unique
// indexes by ORMs.
func (d *SchemaDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnInfo, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			COALESCE(pk.is_pk, false) as is_primary_key,
			COALESCE(uq.is_unique, false) as is_unique,
			c.ordinal_position,
			c.column_default
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
			  AND array_length(ix.indkey, 1) = 1
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_unique
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisunique = true
			  AND ix.indisprimary = false
			  AND n.nspname = $1
			  AND t.relname = $2
			  AND array_length(ix.indkey, 1) = 1
		) uq ON c.column_name = uq.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := d.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnInfo
	for rows.Next() {
		var c datasource.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimaryKey, &c.IsUnique, &c.OrdinalPosition, &c.DefaultValue); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// DiscoverForeignKeys returns all foreign-key relationships, with a flag for
// whether the source column also carries a unique constraint.
func (d *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyInfo, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema as source_schema,
			kcu.table_name as source_table,
			kcu.column_name as source_column,
			ccu.table_schema as target_schema,
			ccu.table_name as target_table,
			ccu.column_name as target_column,
			EXISTS (
				SELECT 1
				FROM pg_index ix
				JOIN pg_class t ON t.oid = ix.indrelid
				JOIN pg_namespace n ON n.oid = t.relnamespace
				JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
				WHERE ix.indisunique = true
				  AND n.nspname = kcu.table_schema
				  AND t.relname = kcu.table_name
				  AND a.attname = kcu.column_name
				  AND array_length(ix.indkey, 1) = 1
			) as source_is_unique
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyInfo
	for rows.Next() {
		var fk datasource.ForeignKeyInfo
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceSchema, &fk.SourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn, &fk.SourceIsUnique); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// AnalyzeColumnStats profiles distinct and null counts for the named
// columns. A failing column does not abort the rest; it comes back with
// zero stats.
func (d *SchemaDiscoverer) AnalyzeColumnStats(ctx context.Context, schemaName, tableName string, columnNames []string) ([]datasource.ColumnStats, error) {
	if len(columnNames) == 0 {
		return nil, nil
	}

	qualified := qualifiedTableName(schemaName, tableName)
	stats := make([]datasource.ColumnStats, 0, len(columnNames))

	for _, col := range columnNames {
		quotedCol := pgx.Identifier{col}.Sanitize()
		query := fmt.Sprintf(`
			SELECT
				COUNT(*) as total_count,
				COUNT(DISTINCT %s) as distinct_count,
				COUNT(*) - COUNT(%s) as null_count
			FROM %s
		`, quotedCol, quotedCol, qualified)

		var s datasource.ColumnStats
		s.ColumnName = col
		if err := d.pool.QueryRow(ctx, query).Scan(&s.TotalCount, &s.DistinctCount, &s.NullCount); err != nil {
			d.logger.Warn("column stats failed",
				zap.String("table", tableName),
				zap.String("column", col),
				zap.Error(err))
			stats = append(stats, s)
			continue
		}
		if s.TotalCount > 0 {
			s.NullPct = float64(s.NullCount) / float64(s.TotalCount)
		}
		stats = append(stats, s)
	}

	return stats, nil
}

// GetDistinctValues returns up to limit distinct non-null values, sorted.
func (d *SchemaDiscoverer) GetDistinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	quotedCol := pgx.Identifier{columnName}.Sanitize()
	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text as val
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY val
		LIMIT $1
	`, quotedCol, qualifiedTableName(schemaName, tableName), quotedCol)

	rows, err := d.pool.Query(ctx, query, limit)
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
func (d *SchemaDiscoverer) ExactRowCount(ctx context.Context, schemaName, tableName string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedTableName(schemaName, tableName))

	var count int64
	if err := d.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
