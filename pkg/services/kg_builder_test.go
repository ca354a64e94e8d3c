package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/config"
	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

type builderFixture struct {
	builder  *KGBuilder
	kgRepo   *kgRepoMock
	schemas  *schemaRepoMock
	emb      *embeddingRepoMock
	index    *vectorindex.Index
	statuses []models.KGStatus
}

func newBuilderFixture(t *testing.T, agentCfg *config.AgentConfig, chat *llm.MockClient) *builderFixture {
	t.Helper()

	f := &builderFixture{
		schemas: &schemaRepoMock{},
		emb:     &embeddingRepoMock{},
	}
	f.kgRepo = &kgRepoMock{
		UpdateStatusFunc: func(ctx context.Context, kgID uuid.UUID, status models.KGStatus, errorMessage string) error {
			f.statuses = append(f.statuses, status)
			return nil
		},
	}

	index, err := vectorindex.New(t.TempDir(), false, zap.NewNop())
	require.NoError(t, err)
	f.index = index

	embed := llm.NewMockClient()
	pool := llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), zap.NewNop())

	f.builder = NewKGBuilder(
		NewSchemaExtractor(agentCfg, zap.NewNop()),
		f.kgRepo, f.schemas, f.emb, index,
		chat, embed, pool,
		agentCfg, &config.AIConfig{EmbeddingModel: "test-embed"},
		zap.NewNop(),
	)
	return f
}

func singleTableDiscoverer() *schemaDiscovererMock {
	return &schemaDiscovererMock{
		DiscoverTablesFunc: func(ctx context.Context) ([]datasource.TableInfo, error) {
			return []datasource.TableInfo{{Schema: "public", Name: "orders", RowCountEstimate: 100000}}, nil
		},
		DiscoverColumnsFunc: func(ctx context.Context, schema, table string) ([]datasource.ColumnInfo, error) {
			return []datasource.ColumnInfo{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true, OrdinalPosition: 1},
				{Name: "total", DataType: "numeric", OrdinalPosition: 2},
			}, nil
		},
	}
}

func TestBuildPersistsAndIndexes(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"description":"Customer orders","business_domain":"sales","typical_use_cases":["revenue reporting"],"columns":{"total":{"description":"Order total in cents","is_pii":false}}}`, nil
	}

	cfg := &config.AgentConfig{GenerateDescriptions: true, GenerateEmbeddings: true}
	f := newBuilderFixture(t, cfg, chat)

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	require.NoError(t, f.builder.Build(context.Background(), kg, singleTableDiscoverer(), nil))

	// building -> ready
	require.NotEmpty(t, f.statuses)
	assert.Equal(t, models.KGStatusReady, f.statuses[len(f.statuses)-1])

	require.Len(t, f.schemas.Tables, 1)
	table := f.schemas.Tables[0]
	assert.Equal(t, kg.ID, table.KGID)
	assert.Equal(t, "Customer orders", table.Description)
	assert.Equal(t, "sales", table.BusinessDomain)
	for _, c := range table.Columns {
		if c.Name == "total" {
			assert.Equal(t, "Order total in cents", c.Description)
		}
	}

	// One table document plus one non-trivial column; the plain PK is
	// skipped.
	require.Len(t, f.emb.Embeddings, 2)
	assert.Equal(t, "test-embed", f.emb.Embeddings[0].ModelID)

	count, err := f.index.Count(kg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBuildSkipsUndescribedColumns(t *testing.T) {
	chat := llm.NewMockClient()
	cfg := &config.AgentConfig{GenerateEmbeddings: true}
	f := newBuilderFixture(t, cfg, chat)

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	require.NoError(t, f.builder.Build(context.Background(), kg, singleTableDiscoverer(), nil))

	// Without enrichment no column has a description, so only the table
	// document gets embedded.
	require.Len(t, f.emb.Embeddings, 1)
	assert.Equal(t, models.EntityTypeTable, f.emb.Embeddings[0].EntityType)
}

func TestBuildWithoutEnrichmentOrEmbeddings(t *testing.T) {
	chat := llm.NewMockClient()
	f := newBuilderFixture(t, &config.AgentConfig{}, chat)

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	require.NoError(t, f.builder.Build(context.Background(), kg, singleTableDiscoverer(), nil))

	assert.Equal(t, 0, chat.GenerateResponseCalls)
	assert.Empty(t, f.emb.Embeddings)
	require.Len(t, f.schemas.Tables, 1)
	assert.Empty(t, f.schemas.Tables[0].Description)
}

func TestBuildSurvivesEnrichmentFailure(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", errors.New("model unavailable")
	}

	cfg := &config.AgentConfig{GenerateDescriptions: true}
	f := newBuilderFixture(t, cfg, chat)

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	require.NoError(t, f.builder.Build(context.Background(), kg, singleTableDiscoverer(), nil))

	// The graph persists undescribed rather than failing the build.
	require.Len(t, f.schemas.Tables, 1)
	assert.Empty(t, f.schemas.Tables[0].Description)
	assert.Equal(t, models.KGStatusReady, f.statuses[len(f.statuses)-1])
}

func TestBuildMarksErrorOnDiscoveryFailure(t *testing.T) {
	f := newBuilderFixture(t, &config.AgentConfig{}, llm.NewMockClient())

	disc := &schemaDiscovererMock{
		DiscoverTablesFunc: func(ctx context.Context) ([]datasource.TableInfo, error) {
			return nil, errors.New("connection reset")
		},
	}

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	err := f.builder.Build(context.Background(), kg, disc, nil)
	require.Error(t, err)
	require.NotEmpty(t, f.statuses)
	assert.Equal(t, models.KGStatusError, f.statuses[len(f.statuses)-1])
}

func TestBuildRejectsEmptyDatabase(t *testing.T) {
	f := newBuilderFixture(t, &config.AgentConfig{}, llm.NewMockClient())

	disc := &schemaDiscovererMock{
		DiscoverTablesFunc: func(ctx context.Context) ([]datasource.TableInfo, error) {
			return nil, nil
		},
	}

	kg := &models.KnowledgeGraph{ID: uuid.New(), Status: models.KGStatusBuilding}
	err := f.builder.Build(context.Background(), kg, disc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tables")
}
