package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// ErrorSummaryRepository provides data access for per-KG lesson summaries.
// Updates are version-checked: a concurrent writer that loses the race gets
// apperrors.ErrConflict and should re-read and retry.
type ErrorSummaryRepository interface {
	GetOrCreate(ctx context.Context, kgID uuid.UUID, threshold int) (*models.ErrorSummary, error)
	Get(ctx context.Context, kgID uuid.UUID) (*models.ErrorSummary, error)
	Update(ctx context.Context, summary *models.ErrorSummary) error
}

type errorSummaryRepository struct {
	db *database.DB
}

// NewErrorSummaryRepository creates a new ErrorSummaryRepository.
func NewErrorSummaryRepository(db *database.DB) ErrorSummaryRepository {
	return &errorSummaryRepository{db: db}
}

var _ ErrorSummaryRepository = (*errorSummaryRepository)(nil)

func (r *errorSummaryRepository) GetOrCreate(ctx context.Context, kgID uuid.UUID, threshold int) (*models.ErrorSummary, error) {
	if threshold <= 0 {
		threshold = models.DefaultCompressionThreshold
	}

	sql := `
		INSERT INTO kg_error_summary (kg_id, compression_threshold)
		VALUES ($1, $2)
		ON CONFLICT (kg_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, sql, kgID, threshold); err != nil {
		return nil, fmt.Errorf("create error summary: %w", err)
	}

	return r.Get(ctx, kgID)
}

func (r *errorSummaryRepository) Get(ctx context.Context, kgID uuid.UUID) (*models.ErrorSummary, error) {
	sql := `
		SELECT kg_id, schema_lessons, sql_lessons, lesson_count, word_count,
		       compression_threshold, last_compressed_at, version, last_updated
		FROM kg_error_summary
		WHERE kg_id = $1`

	var s models.ErrorSummary
	err := r.db.QueryRow(ctx, sql, kgID).Scan(
		&s.KGID, &s.SchemaLessons, &s.SQLLessons, &s.LessonCount, &s.WordCount,
		&s.CompressionThreshold, &s.LastCompressedAt, &s.Version, &s.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get error summary: %w", err)
	}

	return &s, nil
}

func (r *errorSummaryRepository) Update(ctx context.Context, summary *models.ErrorSummary) error {
	sql := `
		UPDATE kg_error_summary
		SET schema_lessons = $2,
		    sql_lessons = $3,
		    lesson_count = $4,
		    word_count = $5,
		    last_compressed_at = $6,
		    version = version + 1,
		    last_updated = NOW()
		WHERE kg_id = $1 AND version = $7`

	result, err := r.db.Exec(ctx, sql,
		summary.KGID, summary.SchemaLessons, summary.SQLLessons,
		summary.LessonCount, summary.WordCount, summary.LastCompressedAt, summary.Version)
	if err != nil {
		return fmt.Errorf("update error summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	summary.Version++

	return nil
}
