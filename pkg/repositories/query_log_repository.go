package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// QueryLogRepository provides data access for the query memory.
type QueryLogRepository interface {
	Insert(ctx context.Context, entry *models.QueryLogEntry) error
	GetByID(ctx context.Context, queryID uuid.UUID) (*models.QueryLogEntry, error)

	// SearchSimilar finds past successful queries whose question embedding
	// is closest to the given vector. Similarity is normalized to [0, 1].
	SearchSimilar(ctx context.Context, kgID uuid.UUID, embedding []float32, k int) ([]models.SimilarQuery, error)

	// UpdateFeedback attaches user feedback and an optional 1-5 rating.
	UpdateFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error
}

type queryLogRepository struct {
	db *database.DB
}

// NewQueryLogRepository creates a new QueryLogRepository.
func NewQueryLogRepository(db *database.DB) QueryLogRepository {
	return &queryLogRepository{db: db}
}

var _ QueryLogRepository = (*queryLogRepository)(nil)

func (r *queryLogRepository) Insert(ctx context.Context, entry *models.QueryLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	var embedding any
	if len(entry.QueryEmbedding) > 0 {
		embedding = pgvector.NewVector(entry.QueryEmbedding)
	}

	sql := `
		INSERT INTO kg_query_log (query_id, kg_id, user_question, refined_question,
			selected_tables, generated_sql, success, execution_time_ms,
			error_message, error_category, correction_summary, tables_used,
			iterations, confidence, query_embedding, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8,
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, sql,
		entry.ID, entry.KGID, entry.UserQuestion, entry.RefinedQuestion,
		entry.SelectedTables, entry.GeneratedSQL, entry.Success, entry.ExecutionTimeMs,
		entry.ErrorMessage, entry.ErrorCategory, entry.CorrectionSummary, entry.TablesUsed,
		entry.Iterations, entry.Confidence, embedding, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query log entry: %w", err)
	}

	return nil
}

func (r *queryLogRepository) GetByID(ctx context.Context, queryID uuid.UUID) (*models.QueryLogEntry, error) {
	sql := `
		SELECT query_id, kg_id, user_question, COALESCE(refined_question, ''),
		       COALESCE(selected_tables, '{}'), COALESCE(generated_sql, ''), success,
		       COALESCE(execution_time_ms, 0), COALESCE(error_message, ''),
		       COALESCE(error_category, ''), COALESCE(correction_summary, ''),
		       COALESCE(tables_used, '{}'), iterations, COALESCE(confidence, 0),
		       COALESCE(user_feedback, ''), user_rating, created_at
		FROM kg_query_log
		WHERE query_id = $1`

	var e models.QueryLogEntry
	err := r.db.QueryRow(ctx, sql, queryID).Scan(
		&e.ID, &e.KGID, &e.UserQuestion, &e.RefinedQuestion,
		&e.SelectedTables, &e.GeneratedSQL, &e.Success,
		&e.ExecutionTimeMs, &e.ErrorMessage,
		&e.ErrorCategory, &e.CorrectionSummary,
		&e.TablesUsed, &e.Iterations, &e.Confidence,
		&e.UserFeedback, &e.UserRating, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get query log entry: %w", err)
	}

	return &e, nil
}

func (r *queryLogRepository) SearchSimilar(ctx context.Context, kgID uuid.UUID, embedding []float32, k int) ([]models.SimilarQuery, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}

	// Cosine distance ranges [0, 2]; map to a [0, 1] similarity.
	sql := `
		SELECT query_id, user_question, generated_sql, COALESCE(tables_used, '{}'),
		       1 - (query_embedding <=> $2) / 2 AS similarity
		FROM kg_query_log
		WHERE kg_id = $1
		  AND success = true
		  AND query_embedding IS NOT NULL
		  AND generated_sql IS NOT NULL
		ORDER BY query_embedding <=> $2
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, kgID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("search similar queries: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarQuery
	for rows.Next() {
		var sq models.SimilarQuery
		if err := rows.Scan(&sq.ID, &sq.UserQuestion, &sq.GeneratedSQL, &sq.TablesUsed, &sq.Similarity); err != nil {
			return nil, fmt.Errorf("scan similar query: %w", err)
		}
		results = append(results, sq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar queries: %w", err)
	}

	return results, nil
}

func (r *queryLogRepository) UpdateFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error {
	sql := `
		UPDATE kg_query_log
		SET user_feedback = NULLIF($2, ''), user_rating = $3
		WHERE query_id = $1`

	result, err := r.db.Exec(ctx, sql, queryID, feedback, rating)
	if err != nil {
		return fmt.Errorf("update query feedback: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
