package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

// LoadedKG is an in-memory view of a ready knowledge graph, cached per
// process so the pipeline doesn't reload the graph on every question.
type LoadedKG struct {
	KG            *models.KnowledgeGraph
	Tables        []models.Table
	TablesByName  map[string]*models.Table
	Relationships []models.Relationship
}

// RelationshipsFor returns the FK edges touching the named table.
func (l *LoadedKG) RelationshipsFor(qualifiedName string) []models.Relationship {
	var out []models.Relationship
	for _, r := range l.Relationships {
		if r.FromTable == qualifiedName || r.ToTable == qualifiedName {
			out = append(out, r)
		}
	}
	return out
}

// KGManager loads ready knowledge graphs into memory and keeps the vector
// index hydrated from the durable embedding store after restarts.
type KGManager struct {
	kgRepo  repositories.KGRepository
	schemas repositories.SchemaRepository
	emb     repositories.EmbeddingRepository
	index   *vectorindex.Index
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]*LoadedKG
}

// NewKGManager creates a KGManager.
func NewKGManager(
	kgRepo repositories.KGRepository,
	schemas repositories.SchemaRepository,
	emb repositories.EmbeddingRepository,
	index *vectorindex.Index,
	logger *zap.Logger,
) *KGManager {
	return &KGManager{
		kgRepo:  kgRepo,
		schemas: schemas,
		emb:     emb,
		index:   index,
		logger:  logger.Named("kg-manager"),
		cache:   make(map[uuid.UUID]*LoadedKG),
	}
}

// Load returns the in-memory view of a ready knowledge graph, loading and
// caching it on first use. It returns apperrors.ErrKGNotFound for unknown
// IDs and apperrors.ErrKGNotReady while a build is in progress or failed.
func (m *KGManager) Load(ctx context.Context, kgID uuid.UUID) (*LoadedKG, error) {
	m.mu.RLock()
	loaded, ok := m.cache[kgID]
	m.mu.RUnlock()
	if ok {
		return loaded, nil
	}

	kg, err := m.kgRepo.GetByID(ctx, kgID)
	if err != nil {
		return nil, err
	}
	if kg.Status != models.KGStatusReady {
		return nil, fmt.Errorf("knowledge graph %s is %s: %w", kgID, kg.Status, apperrors.ErrKGNotReady)
	}

	tables, err := m.schemas.GetTables(ctx, kgID)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	relationships, err := m.schemas.GetRelationships(ctx, kgID)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	loaded = &LoadedKG{
		KG:            kg,
		Tables:        tables,
		TablesByName:  make(map[string]*models.Table, len(tables)),
		Relationships: relationships,
	}
	for i := range loaded.Tables {
		t := &loaded.Tables[i]
		loaded.TablesByName[t.QualifiedName] = t
	}

	if err := m.index.EnsurePopulated(ctx, kgID, func(ctx context.Context) ([]vectorindex.Record, error) {
		return m.rebuildIndexRecords(ctx, kgID, loaded.Tables)
	}); err != nil {
		return nil, fmt.Errorf("hydrate vector index: %w", err)
	}

	m.mu.Lock()
	m.cache[kgID] = loaded
	m.mu.Unlock()

	m.logger.Info("knowledge graph loaded",
		zap.String("kg_id", kgID.String()),
		zap.Int("tables", len(tables)),
		zap.Int("relationships", len(relationships)))

	return loaded, nil
}

// Invalidate drops a graph from the cache, forcing a reload on next use.
// Called after rebuilds and deletes.
func (m *KGManager) Invalidate(kgID uuid.UUID) {
	m.mu.Lock()
	delete(m.cache, kgID)
	m.mu.Unlock()
}

// rebuildIndexRecords reconstructs vector index records from the durable
// embedding store. Runs when the on-disk index is missing or empty, which
// happens after the index directory is wiped or the service moves hosts.
func (m *KGManager) rebuildIndexRecords(ctx context.Context, kgID uuid.UUID, tables []models.Table) ([]vectorindex.Record, error) {
	embeddings, err := m.emb.GetByKG(ctx, kgID)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	return buildIndexRecords(tables, embeddings), nil
}
