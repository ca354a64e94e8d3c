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
)

func newGeneratorFixture(t *testing.T, chat *llm.MockClient) (*SQLGenerator, *queryLogRepoMock) {
	t.Helper()

	queryLog := &queryLogRepoMock{}
	memory := NewQueryMemory(queryLog, llm.NewMockClient(), 5, zap.NewNop())

	summaryRepo, _ := newSummaryFixture(500)
	queue := workqueue.New(1, zap.NewNop())
	t.Cleanup(queue.Shutdown)
	lessons := NewErrorSummaryService(summaryRepo, llm.NewMockClient(), queue, 500, zap.NewNop())

	return NewSQLGenerator(chat, memory, lessons, zap.NewNop()), queryLog
}

func generatorState() *models.AgentState {
	return &models.AgentState{
		KGID:            uuid.New(),
		UserQuestion:    "total revenue by month",
		RefinedQuestion: "monthly sum of orders.total",
		MaxRetries:      3,
		TableContexts: []models.TableContext{{
			Table: models.Table{
				QualifiedName: "public.orders",
				Columns: []models.Column{
					{Name: "id", QualifiedName: "public.orders.id", DataType: "bigint"},
					{Name: "total", QualifiedName: "public.orders.total", DataType: "numeric"},
				},
			},
		}},
	}
}

func TestGeneratorExtractsFencedSQL(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "Here you go:\n```sql\nSELECT date_trunc('month', created_at), SUM(total) FROM public.orders GROUP BY 1\n```", nil
	}
	gen, _ := newGeneratorFixture(t, chat)

	state := generatorState()
	require.NoError(t, gen.Run(context.Background(), state, "postgres"))

	assert.Contains(t, state.GeneratedSQL, "SUM(total)")
	assert.NotContains(t, state.GeneratedSQL, "```")
	assert.Equal(t, models.RouteExecutorValidator, state.RouteTo)
}

func TestGeneratorCorrectsOnStaticFailure(t *testing.T) {
	chat := llm.NewMockClient()
	call := 0
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		call++
		if call == 1 {
			// A write statement fails the read-only check.
			return "```sql\nDELETE FROM public.orders\n```", nil
		}
		return "```sql\nSELECT SUM(total) FROM public.orders\n```", nil
	}
	gen, _ := newGeneratorFixture(t, chat)

	state := generatorState()
	require.NoError(t, gen.Run(context.Background(), state, "postgres"))

	assert.Equal(t, 2, call)
	assert.Equal(t, "SELECT SUM(total) FROM public.orders", state.GeneratedSQL)
}

func TestGeneratorPassesBrokenSQLWhenCorrectionFails(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "```sql\nDELETE FROM public.orders\n```", nil
	}
	gen, _ := newGeneratorFixture(t, chat)

	state := generatorState()
	require.NoError(t, gen.Run(context.Background(), state, "postgres"))

	// One generation turn plus exactly one correction turn; the executor
	// owns the final verdict.
	assert.Equal(t, 2, chat.GenerateResponseCalls)
	assert.Equal(t, "DELETE FROM public.orders", state.GeneratedSQL)
	assert.Equal(t, models.RouteExecutorValidator, state.RouteTo)
}

func TestGeneratorErrorsOnEmptyResponse(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "", nil
	}
	gen, _ := newGeneratorFixture(t, chat)

	err := gen.Run(context.Background(), generatorState(), "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SQL")
}

func TestGeneratorIncludesExamplesAndLessons(t *testing.T) {
	chat := llm.NewMockClient()
	chat.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "```sql\nSELECT 1 FROM public.orders\n```", nil
	}
	gen, queryLog := newGeneratorFixture(t, chat)
	queryLog.SearchSimilarFunc = func(ctx context.Context, kgID uuid.UUID, embedding []float32, k int) ([]models.SimilarQuery, error) {
		assert.Equal(t, 5, k)
		return []models.SimilarQuery{{
			UserQuestion: "revenue last year",
			GeneratedSQL: "SELECT SUM(total) FROM public.orders WHERE created_at >= '2025-01-01'",
			Similarity:   0.91,
		}}, nil
	}

	state := generatorState()
	require.NoError(t, gen.Run(context.Background(), state, "postgres"))

	require.NotEmpty(t, chat.Prompts)
	assert.Contains(t, chat.Prompts[0], "revenue last year")
}
