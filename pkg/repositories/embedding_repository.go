package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// EmbeddingRepository persists entity embeddings so the in-process vector
// index can be rebuilt on startup without calling the embedding model.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, embeddings []models.Embedding) error
	GetByKG(ctx context.Context, kgID uuid.UUID) ([]models.Embedding, error)
	DeleteByKG(ctx context.Context, kgID uuid.UUID) error
}

type embeddingRepository struct {
	db *database.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(db *database.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

var _ EmbeddingRepository = (*embeddingRepository)(nil)

func (r *embeddingRepository) Upsert(ctx context.Context, embeddings []models.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const sql = `
		INSERT INTO kg_embeddings (kg_id, entity_type, entity_id, content, embedding, model_id, dim)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id)
		DO UPDATE SET content = EXCLUDED.content,
		              embedding = EXCLUDED.embedding,
		              model_id = EXCLUDED.model_id,
		              dim = EXCLUDED.dim`

	for i := range embeddings {
		e := &embeddings[i]
		if _, err := tx.Exec(ctx, sql,
			e.KGID, e.EntityType, e.EntityID, e.Content,
			pgvector.NewVector(e.Vector), e.ModelID, e.Dim); err != nil {
			return fmt.Errorf("upsert embedding %s/%s: %w", e.EntityType, e.EntityID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit embeddings: %w", err)
	}

	return nil
}

func (r *embeddingRepository) GetByKG(ctx context.Context, kgID uuid.UUID) ([]models.Embedding, error) {
	sql := `
		SELECT kg_id, entity_type, entity_id, content, embedding, model_id, dim
		FROM kg_embeddings
		WHERE kg_id = $1`

	rows, err := r.db.Query(ctx, sql, kgID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []models.Embedding
	for rows.Next() {
		var e models.Embedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.KGID, &e.EntityType, &e.EntityID, &e.Content, &vec, &e.ModelID, &e.Dim); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Vector = vec.Slice()
		embeddings = append(embeddings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return embeddings, nil
}

func (r *embeddingRepository) DeleteByKG(ctx context.Context, kgID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM kg_embeddings WHERE kg_id = $1`, kgID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}
