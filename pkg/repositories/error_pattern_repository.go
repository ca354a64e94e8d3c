package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// ErrorPatternRepository provides data access for recurring failure
// patterns. Upserting an existing (kg_id, description) pair bumps the
// occurrence count instead of inserting a duplicate.
type ErrorPatternRepository interface {
	Upsert(ctx context.Context, pattern *models.ErrorPattern) error
	// ListActive returns active patterns ordered by recurrence. An empty
	// category matches all categories; a non-empty affectedTables slice
	// keeps only patterns touching at least one of those tables.
	ListActive(ctx context.Context, kgID uuid.UUID, category string, affectedTables []string, limit int) ([]models.ErrorPattern, error)
	Deactivate(ctx context.Context, patternID uuid.UUID) error
}

type errorPatternRepository struct {
	db *database.DB
}

// NewErrorPatternRepository creates a new ErrorPatternRepository.
func NewErrorPatternRepository(db *database.DB) ErrorPatternRepository {
	return &errorPatternRepository{db: db}
}

var _ ErrorPatternRepository = (*errorPatternRepository)(nil)

func (r *errorPatternRepository) Upsert(ctx context.Context, pattern *models.ErrorPattern) error {
	if pattern.ID == uuid.Nil {
		pattern.ID = uuid.New()
	}

	sql := `
		INSERT INTO query_error_patterns (pattern_id, kg_id, category, description,
			example_error, fix_applied, affected_tables, occurrence_count, first_seen, last_seen, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, 1, NOW(), NOW(), true)
		ON CONFLICT (kg_id, description)
		DO UPDATE SET occurrence_count = query_error_patterns.occurrence_count + 1,
		              last_seen = NOW(),
		              example_error = COALESCE(EXCLUDED.example_error, query_error_patterns.example_error),
		              fix_applied = COALESCE(EXCLUDED.fix_applied, query_error_patterns.fix_applied),
		              is_active = true
		RETURNING pattern_id, occurrence_count, first_seen, last_seen`

	err := r.db.QueryRow(ctx, sql,
		pattern.ID, pattern.KGID, pattern.Category, pattern.Description,
		pattern.ExampleError, pattern.FixApplied, pattern.AffectedTables).
		Scan(&pattern.ID, &pattern.OccurrenceCount, &pattern.FirstSeen, &pattern.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert error pattern: %w", err)
	}
	pattern.IsActive = true

	return nil
}

func (r *errorPatternRepository) ListActive(ctx context.Context, kgID uuid.UUID, category string, affectedTables []string, limit int) ([]models.ErrorPattern, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := `
		SELECT pattern_id, kg_id, category, description,
		       COALESCE(example_error, ''), COALESCE(fix_applied, ''),
		       COALESCE(affected_tables, '{}'), occurrence_count, first_seen, last_seen, is_active
		FROM query_error_patterns
		WHERE kg_id = $1 AND is_active = true`
	args := []any{kgID}

	if category != "" {
		args = append(args, category)
		sql += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if len(affectedTables) > 0 {
		args = append(args, affectedTables)
		sql += fmt.Sprintf(" AND affected_tables && $%d", len(args))
	}

	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY occurrence_count DESC, last_seen DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list error patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.ErrorPattern
	for rows.Next() {
		var p models.ErrorPattern
		if err := rows.Scan(&p.ID, &p.KGID, &p.Category, &p.Description,
			&p.ExampleError, &p.FixApplied, &p.AffectedTables,
			&p.OccurrenceCount, &p.FirstSeen, &p.LastSeen, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan error pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error patterns: %w", err)
	}

	return patterns, nil
}

func (r *errorPatternRepository) Deactivate(ctx context.Context, patternID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE query_error_patterns SET is_active = false WHERE pattern_id = $1`, patternID)
	if err != nil {
		return fmt.Errorf("deactivate error pattern: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("error pattern not found")
	}

	return nil
}
