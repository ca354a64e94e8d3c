// Package services implements the knowledge graph lifecycle and the
// three-stage query pipeline.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/config"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

const (
	// exactCountCeiling is the estimate below which we pay for an exact
	// row count. Planner estimates are stale on small tables.
	exactCountCeiling = 10000

	maxEnumValues   = 20
	maxSampleValues = 5
)

// piiNamePatterns flags columns whose names suggest personal data. The
// enrichment pass can override this heuristic in either direction.
var piiNamePatterns = []string{
	"email", "phone", "ssn", "passport", "birth", "dob",
	"first_name", "last_name", "full_name", "surname",
	"address", "street", "zip", "postal",
	"password", "credit_card", "iban", "tax_id",
}

// SchemaExtractor turns a live database into raw table, column, and
// relationship nodes. Enrichment and embedding happen later in the build.
type SchemaExtractor struct {
	cfg    *config.AgentConfig
	logger *zap.Logger
}

// NewSchemaExtractor creates a SchemaExtractor.
func NewSchemaExtractor(cfg *config.AgentConfig, logger *zap.Logger) *SchemaExtractor {
	return &SchemaExtractor{
		cfg:    cfg,
		logger: logger.Named("schema-extractor"),
	}
}

// Extract discovers and profiles the full schema of the target database.
func (e *SchemaExtractor) Extract(ctx context.Context, disc datasource.SchemaDiscoverer, progress models.ProgressFunc) ([]models.Table, []models.Relationship, error) {
	tableInfos, err := disc.DiscoverTables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("discover tables: %w", err)
	}

	report(progress, models.ProgressUpdate{
		Phase:   models.PhaseDiscovery,
		Message: fmt.Sprintf("found %d tables", len(tableInfos)),
		Total:   len(tableInfos),
	})

	tables := make([]models.Table, 0, len(tableInfos))
	for i, info := range tableInfos {
		table, err := e.extractTable(ctx, disc, info)
		if err != nil {
			return nil, nil, fmt.Errorf("extract table %s.%s: %w", info.Schema, info.Name, err)
		}
		tables = append(tables, *table)

		report(progress, models.ProgressUpdate{
			Phase:     models.PhaseProfiling,
			Message:   table.QualifiedName,
			Completed: i + 1,
			Total:     len(tableInfos),
		})
	}

	relationships, err := e.extractRelationships(ctx, disc, tables)
	if err != nil {
		return nil, nil, fmt.Errorf("extract relationships: %w", err)
	}

	report(progress, models.ProgressUpdate{
		Phase:   models.PhaseRelationships,
		Message: fmt.Sprintf("found %d relationships", len(relationships)),
		Total:   len(relationships),
	})

	return tables, relationships, nil
}

func (e *SchemaExtractor) extractTable(ctx context.Context, disc datasource.SchemaDiscoverer, info datasource.TableInfo) (*models.Table, error) {
	table := &models.Table{
		ID:               uuid.New(),
		Name:             info.Name,
		SchemaNamespace:  info.Schema,
		QualifiedName:    info.Schema + "." + info.Name,
		RowCountEstimate: info.RowCountEstimate,
	}

	if info.RowCountEstimate < exactCountCeiling {
		if exact, err := disc.ExactRowCount(ctx, info.Schema, info.Name); err == nil {
			table.RowCountEstimate = exact
		} else {
			e.logger.Warn("exact row count failed",
				zap.String("table", table.QualifiedName),
				zap.Error(err))
		}
	}

	colInfos, err := disc.DiscoverColumns(ctx, info.Schema, info.Name)
	if err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}

	columns := make([]models.Column, 0, len(colInfos))
	colNames := make([]string, 0, len(colInfos))
	for _, ci := range colInfos {
		columns = append(columns, models.Column{
			ID:              uuid.New(),
			TableID:         table.ID,
			Name:            ci.Name,
			QualifiedName:   table.QualifiedName + "." + ci.Name,
			DataType:        ci.DataType,
			IsNullable:      ci.IsNullable,
			IsPrimaryKey:    ci.IsPrimaryKey,
			IsUnique:        ci.IsUnique,
			OrdinalPosition: ci.OrdinalPosition,
			IsPII:           looksLikePII(ci.Name),
		})
		colNames = append(colNames, ci.Name)
	}

	stats, err := disc.AnalyzeColumnStats(ctx, info.Schema, info.Name, colNames)
	if err != nil {
		e.logger.Warn("column stats failed, continuing without profile",
			zap.String("table", table.QualifiedName),
			zap.Error(err))
	}
	statsByName := make(map[string]datasource.ColumnStats, len(stats))
	for _, s := range stats {
		statsByName[s.ColumnName] = s
	}

	for i := range columns {
		c := &columns[i]
		s, ok := statsByName[c.Name]
		if !ok || s.TotalCount == 0 {
			continue
		}
		c.NullPct = s.NullPct
		c.Cardinality = classifyCardinality(s.DistinctCount, s.TotalCount)

		if c.IsPII {
			continue
		}
		switch c.Cardinality {
		case models.CardinalityLow:
			if values, err := disc.GetDistinctValues(ctx, info.Schema, info.Name, c.Name, maxEnumValues); err == nil {
				c.EnumValues = values
			}
		default:
			if values, err := disc.GetDistinctValues(ctx, info.Schema, info.Name, c.Name, maxSampleValues); err == nil {
				c.SampleValues = values
			}
		}
	}

	table.Columns = columns
	return table, nil
}

func (e *SchemaExtractor) extractRelationships(ctx context.Context, disc datasource.SchemaDiscoverer, tables []models.Table) ([]models.Relationship, error) {
	fks, err := disc.DiscoverForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover foreign keys: %w", err)
	}

	tableIDs := make(map[string]*models.Table, len(tables))
	for i := range tables {
		tableIDs[tables[i].QualifiedName] = &tables[i]
	}

	var relationships []models.Relationship
	for _, fk := range fks {
		fromName := fk.SourceSchema + "." + fk.SourceTable
		toName := fk.TargetSchema + "." + fk.TargetTable

		from, okFrom := tableIDs[fromName]
		to, okTo := tableIDs[toName]
		if !okFrom || !okTo {
			e.logger.Warn("foreign key references undiscovered table",
				zap.String("constraint", fk.ConstraintName))
			continue
		}

		relType := models.RelationshipManyToOne
		if fk.SourceIsUnique {
			relType = models.RelationshipOneToOne
		}

		markForeignKey(from, fk.SourceColumn)

		relationships = append(relationships, models.Relationship{
			FromTableID:     from.ID,
			ToTableID:       to.ID,
			FromTable:       fromName,
			ToTable:         toName,
			FromColumn:      fk.SourceColumn,
			ToColumn:        fk.TargetColumn,
			Type:            relType,
			JoinCondition:   fmt.Sprintf("%s.%s = %s.%s", fromName, fk.SourceColumn, toName, fk.TargetColumn),
			IsSelfReference: fromName == toName,
			ConstraintName:  fk.ConstraintName,
		})
	}

	return relationships, nil
}

// classifyCardinality buckets a column by its distinct-value profile.
func classifyCardinality(distinct, total int64) models.Cardinality {
	switch {
	case distinct < 10:
		return models.CardinalityLow
	case float64(distinct) < 0.5*float64(total):
		return models.CardinalityMedium
	default:
		return models.CardinalityHigh
	}
}

func looksLikePII(columnName string) bool {
	lower := strings.ToLower(columnName)
	for _, p := range piiNamePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func markForeignKey(t *models.Table, columnName string) {
	for i := range t.Columns {
		if t.Columns[i].Name == columnName {
			t.Columns[i].IsForeignKey = true
			return
		}
	}
}

func report(progress models.ProgressFunc, update models.ProgressUpdate) {
	if progress != nil {
		progress(update)
	}
}
