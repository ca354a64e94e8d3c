package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/config"
	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/prompts"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

// embeddingBatchSize bounds one embedding API call.
const embeddingBatchSize = 64

// KGBuilder constructs a knowledge graph from a live database: discovery,
// profiling, LLM enrichment, embedding, persistence, and vector indexing.
type KGBuilder struct {
	extractor *SchemaExtractor
	kgRepo    repositories.KGRepository
	schemas   repositories.SchemaRepository
	emb       repositories.EmbeddingRepository
	index     *vectorindex.Index
	chat      llm.Client
	embed     llm.Client
	pool      *llm.WorkerPool
	agentCfg  *config.AgentConfig
	aiCfg     *config.AIConfig
	logger    *zap.Logger
}

// NewKGBuilder creates a KGBuilder.
func NewKGBuilder(
	extractor *SchemaExtractor,
	kgRepo repositories.KGRepository,
	schemas repositories.SchemaRepository,
	emb repositories.EmbeddingRepository,
	index *vectorindex.Index,
	chat llm.Client,
	embed llm.Client,
	pool *llm.WorkerPool,
	agentCfg *config.AgentConfig,
	aiCfg *config.AIConfig,
	logger *zap.Logger,
) *KGBuilder {
	return &KGBuilder{
		extractor: extractor,
		kgRepo:    kgRepo,
		schemas:   schemas,
		emb:       emb,
		index:     index,
		chat:      chat,
		embed:     embed,
		pool:      pool,
		agentCfg:  agentCfg,
		aiCfg:     aiCfg,
		logger:    logger.Named("kg-builder"),
	}
}

// Build runs the full construction pipeline for an existing metadata
// record. On failure the record is moved to the error state with the cause;
// on success to ready.
func (b *KGBuilder) Build(ctx context.Context, kg *models.KnowledgeGraph, disc datasource.SchemaDiscoverer, progress models.ProgressFunc) error {
	if err := b.build(ctx, kg, disc, progress); err != nil {
		if stErr := b.kgRepo.UpdateStatus(ctx, kg.ID, models.KGStatusError, err.Error()); stErr != nil {
			b.logger.Error("failed to record build error", zap.Error(stErr))
		}
		return err
	}

	if err := b.kgRepo.UpdateStatus(ctx, kg.ID, models.KGStatusReady, ""); err != nil {
		return fmt.Errorf("mark knowledge graph ready: %w", err)
	}
	return nil
}

func (b *KGBuilder) build(ctx context.Context, kg *models.KnowledgeGraph, disc datasource.SchemaDiscoverer, progress models.ProgressFunc) error {
	tables, relationships, err := b.extractor.Extract(ctx, disc, progress)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("source database has no tables")
	}

	for i := range tables {
		tables[i].KGID = kg.ID
	}
	for i := range relationships {
		relationships[i].KGID = kg.ID
	}

	if b.agentCfg.GenerateDescriptions {
		b.enrichTables(ctx, tables, progress)
	}

	var embeddings []models.Embedding
	if b.agentCfg.GenerateEmbeddings {
		embeddings, err = b.embedGraph(ctx, kg.ID, tables, progress)
		if err != nil {
			return err
		}
	}

	report(progress, models.ProgressUpdate{Phase: models.PhasePersist, Message: "persisting graph"})
	if err := b.schemas.ReplaceGraph(ctx, kg.ID, tables, relationships); err != nil {
		return fmt.Errorf("persist graph: %w", err)
	}
	if len(embeddings) > 0 {
		if err := b.emb.Upsert(ctx, embeddings); err != nil {
			return fmt.Errorf("persist embeddings: %w", err)
		}
	}

	if len(embeddings) > 0 {
		report(progress, models.ProgressUpdate{Phase: models.PhaseIndexing, Message: "building vector index"})
		records := buildIndexRecords(tables, embeddings)
		if err := b.index.Upsert(ctx, kg.ID, records); err != nil {
			return fmt.Errorf("index graph: %w", err)
		}
	}

	b.logger.Info("knowledge graph built",
		zap.String("kg_id", kg.ID.String()),
		zap.Int("tables", len(tables)),
		zap.Int("relationships", len(relationships)),
		zap.Int("embeddings", len(embeddings)))

	return nil
}

// enrichTables asks the LLM to describe each table and its columns, with
// bounded parallelism. Enrichment failures degrade to undescribed tables
// instead of failing the build.
func (b *KGBuilder) enrichTables(ctx context.Context, tables []models.Table, progress models.ProgressFunc) {
	items := make([]llm.WorkItem[*prompts.TableEnrichmentResponse], len(tables))
	for i := range tables {
		t := &tables[i]
		items[i] = llm.WorkItem[*prompts.TableEnrichmentResponse]{
			ID: t.QualifiedName,
			Execute: func(ctx context.Context) (*prompts.TableEnrichmentResponse, error) {
				resp, err := b.chat.GenerateResponse(ctx,
					prompts.BuildTableEnrichmentPrompt(t),
					prompts.EnrichmentSystemMessage, 0.2)
				if err != nil {
					return nil, err
				}
				parsed, err := llm.ParseJSONResponse[prompts.TableEnrichmentResponse](resp)
				if err != nil {
					return nil, err
				}
				return &parsed, nil
			},
		}
	}

	byName := make(map[string]*models.Table, len(tables))
	for i := range tables {
		byName[tables[i].QualifiedName] = &tables[i]
	}

	results := llm.Process(ctx, b.pool, items, func(completed, total int) {
		report(progress, models.ProgressUpdate{
			Phase:     models.PhaseEnrichment,
			Message:   "describing tables",
			Completed: completed,
			Total:     total,
		})
	})

	for _, r := range results {
		if r.Err != nil {
			b.logger.Warn("table enrichment failed",
				zap.String("table", r.ID),
				zap.Error(r.Err))
			continue
		}
		t := byName[r.ID]
		t.Description = r.Result.Description
		t.BusinessDomain = r.Result.BusinessDomain
		t.TypicalUseCases = r.Result.TypicalUseCases
		for i := range t.Columns {
			c := &t.Columns[i]
			if enriched, ok := r.Result.Columns[c.Name]; ok {
				c.Description = enriched.Description
				// The model sees sample values the name heuristic
				// doesn't, so it may flag PII either way.
				c.IsPII = c.IsPII || enriched.IsPII
			}
		}
	}
}

// embedGraph computes embeddings for every table document and for the
// non-trivial columns that have a description. An undescribed column
// document is just its name, which matches questions spuriously.
func (b *KGBuilder) embedGraph(ctx context.Context, kgID uuid.UUID, tables []models.Table, progress models.ProgressFunc) ([]models.Embedding, error) {
	type pending struct {
		entityType models.EntityType
		entityID   uuid.UUID
		content    string
	}

	var work []pending
	for i := range tables {
		t := &tables[i]
		work = append(work, pending{models.EntityTypeTable, t.ID, t.Document()})
		for j := range t.Columns {
			c := &t.Columns[j]
			if c.IsTrivial() || c.Description == "" {
				continue
			}
			work = append(work, pending{models.EntityTypeColumn, c.ID, c.Document()})
		}
	}

	embeddings := make([]models.Embedding, 0, len(work))
	for start := 0; start < len(work); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		inputs := make([]string, len(batch))
		for i, p := range batch {
			inputs[i] = p.content
		}

		vectors, err := b.embed.CreateEmbeddings(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(batch))
		}

		for i, p := range batch {
			embeddings = append(embeddings, models.Embedding{
				KGID:       kgID,
				EntityType: p.entityType,
				EntityID:   p.entityID,
				Content:    p.content,
				Vector:     vectors[i],
				ModelID:    b.aiCfg.EmbeddingModel,
				Dim:        len(vectors[i]),
			})
		}

		report(progress, models.ProgressUpdate{
			Phase:     models.PhaseEmbedding,
			Message:   "embedding schema documents",
			Completed: end,
			Total:     len(work),
		})
	}

	return embeddings, nil
}

// buildIndexRecords pairs persisted embeddings with their graph entities to
// produce vector index records. Used at build time and at rehydration.
func buildIndexRecords(tables []models.Table, embeddings []models.Embedding) []vectorindex.Record {
	type key struct {
		entityType models.EntityType
		entityID   uuid.UUID
	}
	vectors := make(map[key][]float32, len(embeddings))
	for i := range embeddings {
		e := &embeddings[i]
		vectors[key{e.EntityType, e.EntityID}] = e.Vector
	}

	var records []vectorindex.Record
	for i := range tables {
		t := &tables[i]
		if vec, ok := vectors[key{models.EntityTypeTable, t.ID}]; ok {
			records = append(records, vectorindex.TableRecord(t, vec))
		}
		for j := range t.Columns {
			c := &t.Columns[j]
			if vec, ok := vectors[key{models.EntityTypeColumn, c.ID}]; ok {
				records = append(records, vectorindex.ColumnRecord(c, vec))
			}
		}
	}

	return records
}
