package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/services/workqueue"
)

func newExecutorFixture(t *testing.T, routerChat *llm.MockClient) (*ExecutorValidator, *queryLogRepoMock, *errorPatternRepoMock) {
	t.Helper()

	queryLog := &queryLogRepoMock{}
	memory := NewQueryMemory(queryLog, llm.NewMockClient(), 5, zap.NewNop())

	summaryRepo, _ := newSummaryFixture(500)
	queue := workqueue.New(1, zap.NewNop())
	t.Cleanup(queue.Shutdown)
	lessons := NewErrorSummaryService(summaryRepo, llm.NewMockClient(), queue, 500, zap.NewNop())

	patterns := &errorPatternRepoMock{}
	router := NewErrorRouter(routerChat, patterns, zap.NewNop())

	exec := NewExecutorValidator(router, memory, lessons, patterns, 10000, 30*time.Second, zap.NewNop())
	return exec, queryLog, patterns
}

func executorState() *models.AgentState {
	return &models.AgentState{
		KGID:         uuid.New(),
		UserQuestion: "how many orders",
		GeneratedSQL: "SELECT COUNT(*) FROM public.orders",
		MaxRetries:   3,
		TableContexts: []models.TableContext{{
			Table: models.Table{QualifiedName: "public.orders"},
		}},
	}
}

func TestExecutorSuccess(t *testing.T) {
	ev, queryLog, _ := newExecutorFixture(t, llm.NewMockClient())

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{
				Columns:  []datasource.ResultColumn{{Name: "count", TypeName: "int8"}},
				Rows:     []map[string]any{{"count": int64(42)}},
				RowCount: 1,
			}, nil
		},
	}

	state := executorState()
	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, outcome.Results.RowCount)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, models.RouteComplete, state.RouteTo)

	// The executed statement got the row cap appended.
	require.Len(t, target.Executed, 1)
	assert.Contains(t, target.Executed[0], "LIMIT 10000")

	// Success lands in the query log with its embedding.
	require.Len(t, queryLog.Inserted, 1)
	assert.True(t, queryLog.Inserted[0].Success)
	assert.NotEmpty(t, queryLog.Inserted[0].QueryEmbedding)
	assert.Equal(t, outcome.QueryID, queryLog.Inserted[0].ID)
}

func TestExecutorPreservesExistingLimit(t *testing.T) {
	ev, _, _ := newExecutorFixture(t, llm.NewMockClient())

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{RowCount: 0}, nil
		},
	}

	state := executorState()
	state.GeneratedSQL = "SELECT id FROM public.orders LIMIT 5"
	_, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)

	require.Len(t, target.Executed, 1)
	assert.NotContains(t, target.Executed[0], "10000")
}

func TestExecutorStripsTrailingSemicolon(t *testing.T) {
	ev, _, _ := newExecutorFixture(t, llm.NewMockClient())

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{RowCount: 0}, nil
		},
	}

	state := executorState()
	state.GeneratedSQL = "SELECT COUNT(*) FROM public.orders;"
	_, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)

	require.Len(t, target.Executed, 1)
	assert.NotContains(t, target.Executed[0], ";")
}

func TestExecutorRejectsMultipleStatements(t *testing.T) {
	chat := llm.NewMockClient()
	ev, _, _ := newExecutorFixture(t, chat)

	target := &queryExecutorMock{}
	state := executorState()
	state.GeneratedSQL = "SELECT 1 FROM public.orders; DROP TABLE public.orders"

	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	// Never reached the database; routed back instead.
	assert.Empty(t, target.Executed)
	assert.Equal(t, 1, state.RetryCount)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, models.ErrCatSQLSyntax, state.Errors[0].Category)
}

func TestExecutorRoutesDatabaseError(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"category":"missing_column","is_schema_related":false,"is_terminal":false,"guidance":"the column is named total, not amount"}`, nil
	}
	ev, _, patterns := newExecutorFixture(t, chat)

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New(`ERROR: column "amount" does not exist`)
		},
	}

	state := executorState()
	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	assert.Equal(t, models.RouteSQLGenerator, state.RouteTo)
	assert.Equal(t, "the column is named total, not amount", state.Guidance)
	assert.Equal(t, 1, state.RetryCount)
	require.Len(t, patterns.Upserted, 1)
	assert.Equal(t, models.ErrCatMissingColumn, patterns.Upserted[0].Category)
	assert.Equal(t, "the column is named total, not amount", patterns.Upserted[0].FixApplied)
	assert.Equal(t, []string{"public.orders"}, patterns.Upserted[0].AffectedTables)
}

func TestExecutorClassifiesWithKnownPatterns(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		assert.Contains(t, prompt, "Known Recurring Failures")
		assert.Contains(t, prompt, "amount should be total")
		return `{"category":"missing_column","is_schema_related":false}`, nil
	}
	ev, _, patterns := newExecutorFixture(t, chat)

	// The lookup narrows to the tables the failing attempt selected.
	var askedTables []string
	patterns.ListActiveFunc = func(ctx context.Context, kgID uuid.UUID, category string, affectedTables []string, limit int) ([]models.ErrorPattern, error) {
		askedTables = affectedTables
		return []models.ErrorPattern{{
			Category:        models.ErrCatMissingColumn,
			Description:     "amount should be total",
			OccurrenceCount: 3,
		}}, nil
	}

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New(`ERROR: column "amount" does not exist`)
		},
	}

	state := executorState()
	_, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	assert.Equal(t, []string{"public.orders"}, askedTables)
}

func TestExecutorTerminalFailure(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"category":"permission_denied","is_terminal":true}`, nil
	}
	ev, queryLog, _ := newExecutorFixture(t, chat)

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New("ERROR: permission denied for table payroll")
		},
	}

	state := executorState()
	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, models.OutcomeFailure, outcome.Kind)
	assert.Equal(t, models.ErrCatPermission, outcome.ErrorCategory)
	// Terminal failures don't consume a retry.
	assert.Equal(t, 0, state.RetryCount)

	require.Len(t, queryLog.Inserted, 1)
	assert.False(t, queryLog.Inserted[0].Success)
}

func TestExecutorAmbiguousBecomesClarification(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"category":"ambiguous_question","is_terminal":true,"explanation":"which revenue definition?"}`, nil
	}
	ev, _, _ := newExecutorFixture(t, chat)

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New("ERROR: something ambiguous happened")
		},
	}

	outcome, err := ev.Run(context.Background(), executorState(), target)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, models.OutcomeNeedsClarification, outcome.Kind)
	assert.Equal(t, "which revenue definition?", outcome.ClarificationPrompt)
}

func TestExecutorRetryBudgetExhausted(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"category":"sql_syntax"}`, nil
	}
	ev, _, _ := newExecutorFixture(t, chat)

	target := &queryExecutorMock{
		QueryFunc: func(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
			return nil, errors.New("ERROR: syntax error at or near \"FORM\"")
		},
	}

	state := executorState()
	state.RetryCount = 3

	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, models.OutcomeFailure, outcome.Kind)
}

func TestExecutorPlannerCheckShortCircuits(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"category":"missing_table","is_schema_related":true,"guidance":"use public.orders"}`, nil
	}
	ev, _, _ := newExecutorFixture(t, chat)

	target := &queryExecutorMock{
		ValidateFunc: func(ctx context.Context, sqlQuery string) error {
			return errors.New(`ERROR: relation "public.order" does not exist`)
		},
	}

	state := executorState()
	outcome, err := ev.Run(context.Background(), state, target)
	require.NoError(t, err)
	assert.Nil(t, outcome)

	// The planner rejected the statement before anything ran.
	assert.Empty(t, target.Executed)
	assert.Equal(t, models.RouteSchemaSelector, state.RouteTo)
	assert.Equal(t, 1, state.RetryCount)
}
