// Package vectorindex wraps a persistent chromem collection per knowledge
// graph for semantic retrieval of tables and columns.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// Record is one entry in the index: a stable ID, its embedding, the
// document text, and filterable metadata.
type Record struct {
	ID       string
	Document string
	Embedding []float32
	Metadata map[string]string
}

// SearchResult is one hit from a similarity search. Similarity is
// normalized to [0, 1].
type SearchResult struct {
	ID         string
	Document   string
	Metadata   map[string]string
	Similarity float64
}

// Index manages one chromem collection per knowledge graph.
type Index struct {
	db     *chromem.DB
	logger *zap.Logger

	// loadMu serializes EnsurePopulated per collection.
	mu      sync.Mutex
	loading map[string]*sync.Mutex
}

// New opens (or creates) the persistent vector store at path.
func New(path string, compress bool, logger *zap.Logger) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	return &Index{
		db:      db,
		logger:  logger.Named("vectorindex"),
		loading: make(map[string]*sync.Mutex),
	}, nil
}

func collectionName(kgID uuid.UUID) string {
	return "kg_" + kgID.String()
}

// stubEmbedding rejects any attempt to embed inside chromem. All vectors
// are computed upstream and passed in explicitly.
func stubEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("index requires precomputed embeddings")
}

func (ix *Index) collection(kgID uuid.UUID) (*chromem.Collection, error) {
	return ix.db.GetOrCreateCollection(collectionName(kgID), nil, stubEmbedding)
}

// TableRecord builds the index record for a table node.
func TableRecord(t *models.Table, embedding []float32) Record {
	return Record{
		ID:        t.VectorID(),
		Document:  t.Document(),
		Embedding: embedding,
		Metadata: map[string]string{
			"entity_type":      string(models.EntityTypeTable),
			"table_name":       t.Name,
			"qualified_name":   t.QualifiedName,
			"schema_namespace": t.SchemaNamespace,
			"business_domain":  t.BusinessDomain,
			"row_count":        strconv.FormatInt(t.RowCountEstimate, 10),
		},
	}
}

// ColumnRecord builds the index record for a column node.
func ColumnRecord(c *models.Column, embedding []float32) Record {
	return Record{
		ID:        c.VectorID(),
		Document:  c.Document(),
		Embedding: embedding,
		Metadata: map[string]string{
			"entity_type":    string(models.EntityTypeColumn),
			"qualified_name": c.QualifiedName,
			"column_name":    c.Name,
			"data_type":      c.DataType,
			"is_pii":         strconv.FormatBool(c.IsPII),
			"cardinality":    string(c.Cardinality),
		},
	}
}

// Upsert writes records into the KG's collection. chromem overwrites
// documents with matching IDs.
func (ix *Index) Upsert(ctx context.Context, kgID uuid.UUID, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	col, err := ix.collection(kgID)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
			Content:   r.Document,
		}
	}

	if err := col.AddDocuments(ctx, docs, 4); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	ix.logger.Debug("indexed records",
		zap.String("kg_id", kgID.String()),
		zap.Int("count", len(records)))

	return nil
}

// Search returns the k nearest records for the query embedding, optionally
// filtered by metadata. k is clamped to the collection size.
func (ix *Index) Search(ctx context.Context, kgID uuid.UUID, embedding []float32, k int, where map[string]string) ([]SearchResult, error) {
	col, err := ix.collection(kgID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		// chromem reports cosine similarity in [-1, 1]; normalize.
		out[i] = SearchResult{
			ID:         r.ID,
			Document:   r.Content,
			Metadata:   r.Metadata,
			Similarity: (1 + float64(r.Similarity)) / 2,
		}
	}

	return out, nil
}

// Count returns the number of records indexed for the KG.
func (ix *Index) Count(kgID uuid.UUID) (int, error) {
	col, err := ix.collection(kgID)
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return col.Count(), nil
}

// EnsurePopulated rehydrates the collection from the durable store when it
// is empty, e.g. after the persist directory was wiped. Concurrent callers
// for the same KG are serialized; the loser sees a populated collection
// and returns immediately.
func (ix *Index) EnsurePopulated(ctx context.Context, kgID uuid.UUID, load func(ctx context.Context) ([]Record, error)) error {
	name := collectionName(kgID)

	ix.mu.Lock()
	guard, ok := ix.loading[name]
	if !ok {
		guard = &sync.Mutex{}
		ix.loading[name] = guard
	}
	ix.mu.Unlock()

	guard.Lock()
	defer guard.Unlock()

	count, err := ix.Count(kgID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	records, err := load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := ix.Upsert(ctx, kgID, records); err != nil {
		return err
	}

	ix.logger.Info("rehydrated vector index",
		zap.String("kg_id", kgID.String()),
		zap.Int("records", len(records)))

	return nil
}

// DeleteCollection removes the KG's collection entirely.
func (ix *Index) DeleteCollection(kgID uuid.UUID) error {
	if err := ix.db.DeleteCollection(collectionName(kgID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
