package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/services/workqueue"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

type selectorFixture struct {
	selector *SchemaSelector
	kgID     uuid.UUID
	chat     *llm.MockClient
	embedded []string
}

// newSelectorFixture assembles a selector over a real on-disk vector index
// holding two tables, with orders also indexed through its total column.
func newSelectorFixture(t *testing.T) *selectorFixture {
	t.Helper()

	kgID := uuid.New()
	orders := models.Table{
		ID:            uuid.New(),
		KGID:          kgID,
		Name:          "orders",
		SchemaNamespace: "public",
		QualifiedName: "public.orders",
		Description:   "Customer orders with totals",
		Columns: []models.Column{
			{ID: uuid.New(), Name: "id", QualifiedName: "public.orders.id", DataType: "bigint", IsPrimaryKey: true},
			{ID: uuid.New(), Name: "total", QualifiedName: "public.orders.total", DataType: "numeric"},
			{ID: uuid.New(), Name: "customer_id", QualifiedName: "public.orders.customer_id", DataType: "bigint", IsForeignKey: true},
		},
	}
	customers := models.Table{
		ID:            uuid.New(),
		KGID:          kgID,
		Name:          "customers",
		SchemaNamespace: "public",
		QualifiedName: "public.customers",
		Description:   "Registered customers",
		Columns: []models.Column{
			{ID: uuid.New(), Name: "id", QualifiedName: "public.customers.id", DataType: "bigint", IsPrimaryKey: true},
		},
	}
	rel := models.Relationship{
		ID:          uuid.New(),
		KGID:        kgID,
		FromTableID: orders.ID,
		ToTableID:   customers.ID,
		FromTable:   "public.orders",
		ToTable:     "public.customers",
		FromColumn:  "customer_id",
		ToColumn:    "id",
		Type:        models.RelationshipManyToOne,
	}

	index, err := vectorindex.New(t.TempDir(), false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, index.Upsert(context.Background(), kgID, []vectorindex.Record{
		vectorindex.TableRecord(&orders, []float32{1, 0, 0, 0}),
		vectorindex.TableRecord(&customers, []float32{0, 1, 0, 0}),
		vectorindex.ColumnRecord(&orders.Columns[1], []float32{0.9, 0.1, 0, 0}),
	}))

	kgRepo := &kgRepoMock{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.KnowledgeGraph, error) {
			return &models.KnowledgeGraph{ID: id, Status: models.KGStatusReady}, nil
		},
	}
	schemas := &schemaRepoMock{
		Tables:        []models.Table{orders, customers},
		Relationships: []models.Relationship{rel},
	}
	manager := NewKGManager(kgRepo, schemas, &embeddingRepoMock{}, index, zap.NewNop())

	summaryRepo, _ := newSummaryFixture(500)
	queue := workqueue.New(1, zap.NewNop())
	t.Cleanup(queue.Shutdown)
	lessons := NewErrorSummaryService(summaryRepo, llm.NewMockClient(), queue, 500, zap.NewNop())

	chat := llm.NewMockClient()
	f := &selectorFixture{kgID: kgID, chat: chat}

	embed := llm.NewMockClient()
	embed.CreateEmbeddingFunc = func(ctx context.Context, input string) ([]float32, error) {
		f.embedded = append(f.embedded, input)
		return []float32{1, 0, 0, 0}, nil
	}

	f.selector = NewSchemaSelector(manager, index, chat, embed, lessons, 10, zap.NewNop())
	return f
}

func TestSelectorSelectsTables(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		// The prompt carries the vector candidates, including the column hit.
		assert.Contains(t, prompt, "public.orders")
		assert.Contains(t, prompt, "total")
		return `{"refined_question":"sum of public.orders.total per month","tables":[{"qualified_name":"public.orders","reason":"holds order totals"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{KGID: f.kgID, UserQuestion: "monthly revenue", MaxRetries: 3}
	outcome, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	// customers rides along as an FK enrichment of orders.
	require.Len(t, state.TableContexts, 2)
	names := state.SelectedTableNames()
	assert.Contains(t, names, "public.orders")
	assert.Contains(t, names, "public.customers")
	for _, tc := range state.TableContexts {
		if tc.Table.QualifiedName == "public.orders" {
			assert.Equal(t, "holds order totals", tc.Reason)
		}
	}
	assert.Equal(t, "sum of public.orders.total per month", state.RefinedQuestion)
	assert.Equal(t, models.RouteSQLGenerator, state.RouteTo)
}

func TestSelectorEnrichesForeignKeyTargets(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"tables":[{"qualified_name":"public.orders","reason":"order rows"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{KGID: f.kgID, UserQuestion: "recent orders", MaxRetries: 3}
	_, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)

	var customersCtx *models.TableContext
	for i := range state.TableContexts {
		if state.TableContexts[i].Table.QualifiedName == "public.customers" {
			customersCtx = &state.TableContexts[i]
		}
	}
	require.NotNil(t, customersCtx)
	assert.Equal(t, "referenced by a foreign key of a selected table", customersCtx.Reason)
}

func TestSelectorFoldsClarificationsIntoPrompt(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		assert.Contains(t, prompt, "revenue means the sum of order totals")
		return `{"tables":[{"qualified_name":"public.orders","reason":"order totals"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{
		KGID:           f.kgID,
		UserQuestion:   "show me performance",
		Clarifications: "revenue means the sum of order totals",
		MaxRetries:     3,
	}
	_, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
}

func TestSelectorIncludesJoinPaths(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"refined_question":"orders joined to customers","tables":[{"qualified_name":"public.orders","reason":"order rows"},{"qualified_name":"public.customers","reason":"customer names"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{KGID: f.kgID, UserQuestion: "orders per customer", MaxRetries: 3}
	outcome, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	require.Len(t, state.TableContexts, 2)
	var ordersCtx *models.TableContext
	for i := range state.TableContexts {
		if state.TableContexts[i].Table.QualifiedName == "public.orders" {
			ordersCtx = &state.TableContexts[i]
		}
	}
	require.NotNil(t, ordersCtx)
	require.Len(t, ordersCtx.Relationships, 1)
	assert.Equal(t, "public.customers", ordersCtx.Relationships[0].ToTable)
	assert.Empty(t, state.SchemaWarnings)
}

func TestSelectorNeedsClarification(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"needs_clarification":true,"clarification_prompt":"Which metric do you mean by performance?","suggestions":["revenue per month","order count per month"]}`, nil
	}

	state := &models.AgentState{KGID: f.kgID, UserQuestion: "show me performance", MaxRetries: 3}
	outcome, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, models.OutcomeNeedsClarification, outcome.Kind)
	assert.Equal(t, "Which metric do you mean by performance?", outcome.ClarificationPrompt)
	assert.Len(t, outcome.Suggestions, 2)
	assert.Empty(t, state.TableContexts)
}

func TestSelectorFallsBackOnUnknownTables(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"tables":[{"qualified_name":"public.does_not_exist","reason":"hallucinated"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{KGID: f.kgID, UserQuestion: "monthly revenue", MaxRetries: 3}
	outcome, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	// Unknown selection degrades to the strongest vector hits.
	require.NotEmpty(t, state.TableContexts)
	assert.NotEmpty(t, state.SchemaWarnings)
}

func TestSelectorPassesGuidanceIntoPrompt(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		assert.Contains(t, prompt, "do not use public.customers")
		return `{"tables":[{"qualified_name":"public.orders","reason":"retry"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{
		KGID:         f.kgID,
		UserQuestion: "monthly revenue",
		MaxRetries:   3,
		Guidance:     "do not use public.customers",
	}
	_, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)
}

func TestSelectorEmbedsRefinedQuestionOnRetry(t *testing.T) {
	f := newSelectorFixture(t)
	f.chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"tables":[{"qualified_name":"public.orders","reason":"order totals"}],"needs_clarification":false}`, nil
	}

	state := &models.AgentState{
		KGID:            f.kgID,
		UserQuestion:    "show me performance",
		RefinedQuestion: "sum of public.orders.total per month",
		MaxRetries:      3,
	}
	_, err := f.selector.Run(context.Background(), state)
	require.NoError(t, err)

	require.NotEmpty(t, f.embedded)
	assert.Equal(t, "sum of public.orders.total per month", f.embedded[0])
}

func TestEnrichSkipsSelfReferences(t *testing.T) {
	employees := models.Table{QualifiedName: "public.employees"}
	departments := models.Table{QualifiedName: "public.departments"}
	loaded := &LoadedKG{
		TablesByName: map[string]*models.Table{
			"public.employees":   &employees,
			"public.departments": &departments,
		},
		Relationships: []models.Relationship{
			{FromTable: "public.employees", ToTable: "public.employees", FromColumn: "manager_id", ToColumn: "id", IsSelfReference: true},
			{FromTable: "public.employees", ToTable: "public.departments", FromColumn: "department_id", ToColumn: "id"},
		},
	}

	selected := map[string]string{"public.employees": "asked about"}
	enriched := enrichReferenced(loaded, selected)
	assert.Equal(t, []string{"public.departments"}, enriched)
}

func TestBridgeAddsAllIntermediates(t *testing.T) {
	tables := map[string]*models.Table{}
	for _, name := range []string{"public.customers", "public.orders", "public.order_items", "public.products"} {
		tables[name] = &models.Table{QualifiedName: name}
	}
	loaded := &LoadedKG{
		TablesByName: tables,
		Relationships: []models.Relationship{
			{FromTable: "public.orders", ToTable: "public.customers", FromColumn: "customer_id", ToColumn: "id"},
			{FromTable: "public.order_items", ToTable: "public.orders", FromColumn: "order_id", ToColumn: "id"},
			{FromTable: "public.order_items", ToTable: "public.products", FromColumn: "product_id", ToColumn: "id"},
		},
	}

	// customers and products only connect through orders and order_items;
	// both hops ride along.
	selected := map[string]string{
		"public.customers": "asked about",
		"public.products":  "asked about",
	}
	bridges := bridgeDisconnected(loaded, selected)
	assert.Equal(t, []string{"public.order_items", "public.orders"}, bridges)
}
