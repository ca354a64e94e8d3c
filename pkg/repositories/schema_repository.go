package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// SchemaRepository provides data access for table, column, and relationship
// nodes of a knowledge graph.
type SchemaRepository interface {
	// ReplaceGraph deletes any existing nodes for the KG and inserts the
	// given tables (with columns) and relationships in one transaction.
	ReplaceGraph(ctx context.Context, kgID uuid.UUID, tables []models.Table, relationships []models.Relationship) error

	// GetTables returns all tables with their columns populated.
	GetTables(ctx context.Context, kgID uuid.UUID) ([]models.Table, error)

	// GetTablesByQualifiedNames returns the named tables with columns.
	GetTablesByQualifiedNames(ctx context.Context, kgID uuid.UUID, names []string) ([]models.Table, error)

	// GetRelationships returns all FK edges for the KG.
	GetRelationships(ctx context.Context, kgID uuid.UUID) ([]models.Relationship, error)
}

type schemaRepository struct {
	db *database.DB
}

// NewSchemaRepository creates a new SchemaRepository.
func NewSchemaRepository(db *database.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

var _ SchemaRepository = (*schemaRepository)(nil)

func (r *schemaRepository) ReplaceGraph(ctx context.Context, kgID uuid.UUID, tables []models.Table, relationships []models.Relationship) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Cascades clear columns, relationships, and embeddings for the KG.
	if _, err := tx.Exec(ctx, `DELETE FROM kg_tables WHERE kg_id = $1`, kgID); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}

	const insertTable = `
		INSERT INTO kg_tables (table_id, kg_id, name, schema_namespace, qualified_name,
			row_count_estimate, description, business_domain, typical_use_cases)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`

	const insertColumn = `
		INSERT INTO kg_columns (column_id, table_id, name, qualified_name, data_type,
			is_nullable, is_primary_key, is_unique, is_foreign_key, ordinal_position,
			description, business_meaning, sample_values, enum_values, cardinality, null_pct, is_pii)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			NULLIF($11, ''), NULLIF($12, ''), $13, $14, NULLIF($15, ''), $16, $17)`

	for i := range tables {
		t := &tables[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.KGID = kgID

		if _, err := tx.Exec(ctx, insertTable,
			t.ID, kgID, t.Name, t.SchemaNamespace, t.QualifiedName,
			t.RowCountEstimate, t.Description, t.BusinessDomain, t.TypicalUseCases); err != nil {
			return fmt.Errorf("insert table %s: %w", t.QualifiedName, err)
		}

		for j := range t.Columns {
			c := &t.Columns[j]
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.TableID = t.ID

			if _, err := tx.Exec(ctx, insertColumn,
				c.ID, t.ID, c.Name, c.QualifiedName, c.DataType,
				c.IsNullable, c.IsPrimaryKey, c.IsUnique, c.IsForeignKey, c.OrdinalPosition,
				c.Description, c.BusinessMeaning, c.SampleValues, c.EnumValues,
				string(c.Cardinality), c.NullPct, c.IsPII); err != nil {
				return fmt.Errorf("insert column %s: %w", c.QualifiedName, err)
			}
		}
	}

	const insertRel = `
		INSERT INTO kg_relationships (rel_id, kg_id, from_table_id, to_table_id,
			from_column, to_column, rel_type, join_condition, is_self_reference, constraint_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`

	for i := range relationships {
		rel := &relationships[i]
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		rel.KGID = kgID

		if _, err := tx.Exec(ctx, insertRel,
			rel.ID, kgID, rel.FromTableID, rel.ToTableID,
			rel.FromColumn, rel.ToColumn, string(rel.Type), rel.JoinCondition,
			rel.IsSelfReference, rel.ConstraintName); err != nil {
			return fmt.Errorf("insert relationship %s: %w", rel.JoinCondition, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit graph: %w", err)
	}

	return nil
}

func (r *schemaRepository) GetTables(ctx context.Context, kgID uuid.UUID) ([]models.Table, error) {
	return r.loadTables(ctx, kgID, nil)
}

func (r *schemaRepository) GetTablesByQualifiedNames(ctx context.Context, kgID uuid.UUID, names []string) ([]models.Table, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return r.loadTables(ctx, kgID, names)
}

func (r *schemaRepository) loadTables(ctx context.Context, kgID uuid.UUID, names []string) ([]models.Table, error) {
	sql := `
		SELECT table_id, kg_id, name, schema_namespace, qualified_name,
		       COALESCE(row_count_estimate, 0), COALESCE(description, ''),
		       COALESCE(business_domain, ''), COALESCE(typical_use_cases, '{}')
		FROM kg_tables
		WHERE kg_id = $1`
	args := []any{kgID}
	if names != nil {
		sql += ` AND qualified_name = ANY($2)`
		args = append(args, names)
	}
	sql += ` ORDER BY qualified_name`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var t models.Table
		if err := rows.Scan(&t.ID, &t.KGID, &t.Name, &t.SchemaNamespace, &t.QualifiedName,
			&t.RowCountEstimate, &t.Description, &t.BusinessDomain, &t.TypicalUseCases); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		byID[t.ID] = len(tables)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	if len(tables) == 0 {
		return tables, nil
	}

	tableIDs := make([]uuid.UUID, 0, len(tables))
	for _, t := range tables {
		tableIDs = append(tableIDs, t.ID)
	}

	colRows, err := r.db.Query(ctx, `
		SELECT column_id, table_id, name, qualified_name, data_type,
		       is_nullable, is_primary_key, is_unique, is_foreign_key, ordinal_position,
		       COALESCE(description, ''), COALESCE(business_meaning, ''),
		       COALESCE(sample_values, '{}'), COALESCE(enum_values, '{}'),
		       COALESCE(cardinality, ''), COALESCE(null_pct, 0), is_pii
		FROM kg_columns
		WHERE table_id = ANY($1)
		ORDER BY table_id, ordinal_position`, tableIDs)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		c, err := scanColumn(colRows)
		if err != nil {
			return nil, err
		}
		if idx, ok := byID[c.TableID]; ok {
			tables[idx].Columns = append(tables[idx].Columns, *c)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return tables, nil
}

func (r *schemaRepository) GetRelationships(ctx context.Context, kgID uuid.UUID) ([]models.Relationship, error) {
	sql := `
		SELECT rel.rel_id, rel.kg_id, rel.from_table_id, rel.to_table_id,
		       ft.qualified_name, tt.qualified_name,
		       rel.from_column, rel.to_column, rel.rel_type, rel.join_condition,
		       rel.is_self_reference, COALESCE(rel.constraint_name, '')
		FROM kg_relationships rel
		JOIN kg_tables ft ON ft.table_id = rel.from_table_id
		JOIN kg_tables tt ON tt.table_id = rel.to_table_id
		WHERE rel.kg_id = $1
		ORDER BY ft.qualified_name, rel.from_column`

	rows, err := r.db.Query(ctx, sql, kgID)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		var rel models.Relationship
		if err := rows.Scan(&rel.ID, &rel.KGID, &rel.FromTableID, &rel.ToTableID,
			&rel.FromTable, &rel.ToTable,
			&rel.FromColumn, &rel.ToColumn, &rel.Type, &rel.JoinCondition,
			&rel.IsSelfReference, &rel.ConstraintName); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}

	return rels, nil
}

func scanColumn(rows pgx.Rows) (*models.Column, error) {
	var c models.Column
	var cardinality string
	err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.QualifiedName, &c.DataType,
		&c.IsNullable, &c.IsPrimaryKey, &c.IsUnique, &c.IsForeignKey, &c.OrdinalPosition,
		&c.Description, &c.BusinessMeaning, &c.SampleValues, &c.EnumValues,
		&cardinality, &c.NullPct, &c.IsPII)
	if err != nil {
		return nil, fmt.Errorf("scan column: %w", err)
	}
	c.Cardinality = models.Cardinality(cardinality)
	return &c, nil
}
