package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

type queryLogRepoMock struct {
	InsertFunc         func(ctx context.Context, entry *models.QueryLogEntry) error
	GetByIDFunc        func(ctx context.Context, queryID uuid.UUID) (*models.QueryLogEntry, error)
	SearchSimilarFunc  func(ctx context.Context, kgID uuid.UUID, embedding []float32, k int) ([]models.SimilarQuery, error)
	UpdateFeedbackFunc func(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error

	Inserted []*models.QueryLogEntry
}

func (m *queryLogRepoMock) Insert(ctx context.Context, entry *models.QueryLogEntry) error {
	m.Inserted = append(m.Inserted, entry)
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	return nil
}

func (m *queryLogRepoMock) GetByID(ctx context.Context, queryID uuid.UUID) (*models.QueryLogEntry, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, queryID)
	}
	return nil, nil
}

func (m *queryLogRepoMock) SearchSimilar(ctx context.Context, kgID uuid.UUID, embedding []float32, k int) ([]models.SimilarQuery, error) {
	if m.SearchSimilarFunc != nil {
		return m.SearchSimilarFunc(ctx, kgID, embedding, k)
	}
	return nil, nil
}

func (m *queryLogRepoMock) UpdateFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error {
	if m.UpdateFeedbackFunc != nil {
		return m.UpdateFeedbackFunc(ctx, queryID, feedback, rating)
	}
	return nil
}

type errorSummaryRepoMock struct {
	GetOrCreateFunc func(ctx context.Context, kgID uuid.UUID, threshold int) (*models.ErrorSummary, error)
	GetFunc         func(ctx context.Context, kgID uuid.UUID) (*models.ErrorSummary, error)
	UpdateFunc      func(ctx context.Context, summary *models.ErrorSummary) error
}

func (m *errorSummaryRepoMock) GetOrCreate(ctx context.Context, kgID uuid.UUID, threshold int) (*models.ErrorSummary, error) {
	return m.GetOrCreateFunc(ctx, kgID, threshold)
}

func (m *errorSummaryRepoMock) Get(ctx context.Context, kgID uuid.UUID) (*models.ErrorSummary, error) {
	return m.GetFunc(ctx, kgID)
}

func (m *errorSummaryRepoMock) Update(ctx context.Context, summary *models.ErrorSummary) error {
	return m.UpdateFunc(ctx, summary)
}

type errorPatternRepoMock struct {
	Upserted       []*models.ErrorPattern
	ListActiveFunc func(ctx context.Context, kgID uuid.UUID, category string, affectedTables []string, limit int) ([]models.ErrorPattern, error)
}

func (m *errorPatternRepoMock) Upsert(ctx context.Context, pattern *models.ErrorPattern) error {
	m.Upserted = append(m.Upserted, pattern)
	return nil
}

func (m *errorPatternRepoMock) ListActive(ctx context.Context, kgID uuid.UUID, category string, affectedTables []string, limit int) ([]models.ErrorPattern, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, kgID, category, affectedTables, limit)
	}
	return nil, nil
}

func (m *errorPatternRepoMock) Deactivate(ctx context.Context, patternID uuid.UUID) error {
	return nil
}

type kgRepoMock struct {
	CreateFunc           func(ctx context.Context, kg *models.KnowledgeGraph) error
	GetByIDFunc          func(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error)
	GetByFingerprintFunc func(ctx context.Context, fingerprint string) (*models.KnowledgeGraph, error)
	ListFunc             func(ctx context.Context) ([]*models.KnowledgeGraph, error)
	UpdateStatusFunc     func(ctx context.Context, kgID uuid.UUID, status models.KGStatus, errorMessage string) error
	BumpVersionFunc      func(ctx context.Context, kgID uuid.UUID) error
	DeleteFunc           func(ctx context.Context, kgID uuid.UUID) error
}

func (m *kgRepoMock) Create(ctx context.Context, kg *models.KnowledgeGraph) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, kg)
	}
	return nil
}

func (m *kgRepoMock) GetByID(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error) {
	return m.GetByIDFunc(ctx, kgID)
}

func (m *kgRepoMock) GetByFingerprint(ctx context.Context, fingerprint string) (*models.KnowledgeGraph, error) {
	return m.GetByFingerprintFunc(ctx, fingerprint)
}

func (m *kgRepoMock) List(ctx context.Context) ([]*models.KnowledgeGraph, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *kgRepoMock) UpdateStatus(ctx context.Context, kgID uuid.UUID, status models.KGStatus, errorMessage string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, kgID, status, errorMessage)
	}
	return nil
}

func (m *kgRepoMock) BumpVersion(ctx context.Context, kgID uuid.UUID) error {
	if m.BumpVersionFunc != nil {
		return m.BumpVersionFunc(ctx, kgID)
	}
	return nil
}

func (m *kgRepoMock) Delete(ctx context.Context, kgID uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, kgID)
	}
	return nil
}

type schemaRepoMock struct {
	ReplaceGraphFunc func(ctx context.Context, kgID uuid.UUID, tables []models.Table, relationships []models.Relationship) error
	Tables           []models.Table
	Relationships    []models.Relationship
}

func (m *schemaRepoMock) ReplaceGraph(ctx context.Context, kgID uuid.UUID, tables []models.Table, relationships []models.Relationship) error {
	if m.ReplaceGraphFunc != nil {
		return m.ReplaceGraphFunc(ctx, kgID, tables, relationships)
	}
	m.Tables = tables
	m.Relationships = relationships
	return nil
}

func (m *schemaRepoMock) GetTables(ctx context.Context, kgID uuid.UUID) ([]models.Table, error) {
	return m.Tables, nil
}

func (m *schemaRepoMock) GetTablesByQualifiedNames(ctx context.Context, kgID uuid.UUID, names []string) ([]models.Table, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []models.Table
	for _, t := range m.Tables {
		if wanted[t.QualifiedName] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *schemaRepoMock) GetRelationships(ctx context.Context, kgID uuid.UUID) ([]models.Relationship, error) {
	return m.Relationships, nil
}

type embeddingRepoMock struct {
	Embeddings []models.Embedding
}

func (m *embeddingRepoMock) Upsert(ctx context.Context, embeddings []models.Embedding) error {
	m.Embeddings = append(m.Embeddings, embeddings...)
	return nil
}

func (m *embeddingRepoMock) GetByKG(ctx context.Context, kgID uuid.UUID) ([]models.Embedding, error) {
	return m.Embeddings, nil
}

func (m *embeddingRepoMock) DeleteByKG(ctx context.Context, kgID uuid.UUID) error {
	m.Embeddings = nil
	return nil
}

type queryExecutorMock struct {
	QueryFunc    func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error)
	ValidateFunc func(ctx context.Context, sqlQuery string) error

	Executed []string
}

func (m *queryExecutorMock) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	m.Executed = append(m.Executed, sqlQuery)
	return m.QueryFunc(ctx, sqlQuery)
}

func (m *queryExecutorMock) Validate(ctx context.Context, sqlQuery string) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, sqlQuery)
	}
	return nil
}

func (m *queryExecutorMock) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (m *queryExecutorMock) Close() error { return nil }

type schemaDiscovererMock struct {
	DiscoverTablesFunc      func(ctx context.Context) ([]datasource.TableInfo, error)
	DiscoverColumnsFunc     func(ctx context.Context, schema, table string) ([]datasource.ColumnInfo, error)
	DiscoverForeignKeysFunc func(ctx context.Context) ([]datasource.ForeignKeyInfo, error)
	AnalyzeColumnStatsFunc  func(ctx context.Context, schema, table string, columns []string) ([]datasource.ColumnStats, error)
	GetDistinctValuesFunc   func(ctx context.Context, schema, table, column string, limit int) ([]string, error)
	ExactRowCountFunc       func(ctx context.Context, schema, table string) (int64, error)
}

func (m *schemaDiscovererMock) DiscoverTables(ctx context.Context) ([]datasource.TableInfo, error) {
	return m.DiscoverTablesFunc(ctx)
}

func (m *schemaDiscovererMock) DiscoverColumns(ctx context.Context, schema, table string) ([]datasource.ColumnInfo, error) {
	return m.DiscoverColumnsFunc(ctx, schema, table)
}

func (m *schemaDiscovererMock) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyInfo, error) {
	if m.DiscoverForeignKeysFunc != nil {
		return m.DiscoverForeignKeysFunc(ctx)
	}
	return nil, nil
}

func (m *schemaDiscovererMock) AnalyzeColumnStats(ctx context.Context, schema, table string, columns []string) ([]datasource.ColumnStats, error) {
	if m.AnalyzeColumnStatsFunc != nil {
		return m.AnalyzeColumnStatsFunc(ctx, schema, table, columns)
	}
	return nil, nil
}

func (m *schemaDiscovererMock) GetDistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if m.GetDistinctValuesFunc != nil {
		return m.GetDistinctValuesFunc(ctx, schema, table, column, limit)
	}
	return nil, nil
}

func (m *schemaDiscovererMock) ExactRowCount(ctx context.Context, schema, table string) (int64, error) {
	if m.ExactRowCountFunc != nil {
		return m.ExactRowCountFunc(ctx, schema, table)
	}
	return 0, nil
}

func (m *schemaDiscovererMock) Ping(ctx context.Context) error { return nil }

func (m *schemaDiscovererMock) Close() error { return nil }
