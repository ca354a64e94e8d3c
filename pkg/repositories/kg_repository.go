// Package repositories provides data access for the knowledge graph store.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// KGRepository provides data access for knowledge graph metadata records.
type KGRepository interface {
	Create(ctx context.Context, kg *models.KnowledgeGraph) error
	GetByID(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.KnowledgeGraph, error)
	List(ctx context.Context) ([]*models.KnowledgeGraph, error)
	UpdateStatus(ctx context.Context, kgID uuid.UUID, status models.KGStatus, errorMessage string) error
	BumpVersion(ctx context.Context, kgID uuid.UUID) error
	Delete(ctx context.Context, kgID uuid.UUID) error
}

type kgRepository struct {
	db *database.DB
}

// NewKGRepository creates a new KGRepository.
func NewKGRepository(db *database.DB) KGRepository {
	return &kgRepository{db: db}
}

var _ KGRepository = (*kgRepository)(nil)

func (r *kgRepository) Create(ctx context.Context, kg *models.KnowledgeGraph) error {
	if kg.ID == uuid.Nil {
		kg.ID = uuid.New()
	}
	now := time.Now()
	kg.CreatedAt = now
	kg.LastUpdated = now
	if kg.Status == "" {
		kg.Status = models.KGStatusBuilding
	}
	if kg.Version == 0 {
		kg.Version = 1
	}

	sql := `
		INSERT INTO kg_metadata (kg_id, source_fingerprint, status, version, error_message, created_at, last_updated)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`

	_, err := r.db.Exec(ctx, sql,
		kg.ID, kg.SourceFingerprint, kg.Status, kg.Version, kg.ErrorMessage, kg.CreatedAt, kg.LastUpdated)
	if err != nil {
		return fmt.Errorf("create knowledge graph: %w", err)
	}

	return nil
}

func (r *kgRepository) GetByID(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error) {
	sql := `
		SELECT kg_id, source_fingerprint, status, version, COALESCE(error_message, ''), created_at, last_updated
		FROM kg_metadata
		WHERE kg_id = $1`

	kg, err := scanKG(r.db.QueryRow(ctx, sql, kgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrKGNotFound
		}
		return nil, fmt.Errorf("get knowledge graph: %w", err)
	}

	return kg, nil
}

func (r *kgRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.KnowledgeGraph, error) {
	sql := `
		SELECT kg_id, source_fingerprint, status, version, COALESCE(error_message, ''), created_at, last_updated
		FROM kg_metadata
		WHERE source_fingerprint = $1`

	kg, err := scanKG(r.db.QueryRow(ctx, sql, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrKGNotFound
		}
		return nil, fmt.Errorf("get knowledge graph by fingerprint: %w", err)
	}

	return kg, nil
}

func (r *kgRepository) List(ctx context.Context) ([]*models.KnowledgeGraph, error) {
	sql := `
		SELECT kg_id, source_fingerprint, status, version, COALESCE(error_message, ''), created_at, last_updated
		FROM kg_metadata
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list knowledge graphs: %w", err)
	}
	defer rows.Close()

	kgs := make([]*models.KnowledgeGraph, 0)
	for rows.Next() {
		kg, err := scanKG(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge graph: %w", err)
		}
		kgs = append(kgs, kg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge graphs: %w", err)
	}

	return kgs, nil
}

func (r *kgRepository) UpdateStatus(ctx context.Context, kgID uuid.UUID, status models.KGStatus, errorMessage string) error {
	sql := `
		UPDATE kg_metadata
		SET status = $2, error_message = NULLIF($3, ''), last_updated = NOW()
		WHERE kg_id = $1`

	result, err := r.db.Exec(ctx, sql, kgID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("update knowledge graph status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrKGNotFound
	}

	return nil
}

func (r *kgRepository) BumpVersion(ctx context.Context, kgID uuid.UUID) error {
	sql := `
		UPDATE kg_metadata
		SET version = version + 1, last_updated = NOW()
		WHERE kg_id = $1`

	result, err := r.db.Exec(ctx, sql, kgID)
	if err != nil {
		return fmt.Errorf("bump knowledge graph version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrKGNotFound
	}

	return nil
}

func (r *kgRepository) Delete(ctx context.Context, kgID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM kg_metadata WHERE kg_id = $1`, kgID)
	if err != nil {
		return fmt.Errorf("delete knowledge graph: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrKGNotFound
	}

	return nil
}

func scanKG(row pgx.Row) (*models.KnowledgeGraph, error) {
	var kg models.KnowledgeGraph
	err := row.Scan(&kg.ID, &kg.SourceFingerprint, &kg.Status, &kg.Version, &kg.ErrorMessage, &kg.CreatedAt, &kg.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &kg, nil
}
