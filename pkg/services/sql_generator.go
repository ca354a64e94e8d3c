package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/prompts"
	sqlcheck "github.com/kgraph-ai/kgraph-engine/pkg/sql"
)

// SQLGenerator is the second pipeline stage. It writes a single SELECT for
// the refined question using the selected schema slice, similar past
// queries as examples, and accumulated SQL lessons.
type SQLGenerator struct {
	chat    llm.Client
	memory  *QueryMemory
	lessons *ErrorSummaryService
	logger  *zap.Logger
}

// NewSQLGenerator creates a SQLGenerator.
func NewSQLGenerator(chat llm.Client, memory *QueryMemory, lessons *ErrorSummaryService, logger *zap.Logger) *SQLGenerator {
	return &SQLGenerator{
		chat:    chat,
		memory:  memory,
		lessons: lessons,
		logger:  logger.Named("sql-generator"),
	}
}

// Run generates SQL onto the state and advances the route to execution.
// A statement that fails static checks gets one local correction turn; the
// result is handed on either way, since the executor re-checks and routes.
func (g *SQLGenerator) Run(ctx context.Context, state *models.AgentState, dialect string) error {
	question := state.RefinedQuestion
	if question == "" {
		question = state.UserQuestion
	}

	examples := g.memory.SimilarQueries(ctx, state.KGID, state.UserQuestion)

	sqlLessons := ""
	if summary, err := g.lessons.Lessons(ctx, state.KGID); err == nil {
		sqlLessons = summary.SQLLessons
	} else {
		g.logger.Warn("sql lessons unavailable", zap.Error(err))
	}

	resp, err := g.chat.GenerateResponse(ctx,
		prompts.BuildGenerationPrompt(question, dialect, state.TableContexts, examples, sqlLessons, state.Guidance),
		prompts.GenerationSystemMessage, 0)
	if err != nil {
		return fmt.Errorf("generate sql: %w", err)
	}

	generated := llm.ExtractSQL(resp)
	if generated == "" {
		return fmt.Errorf("model returned no SQL")
	}

	if check := sqlcheck.CheckGeneratedSQL(generated, state.SelectedTableNames()); !check.OK() {
		g.logger.Debug("generated sql failed static checks, attempting correction",
			zap.Strings("problems", check.Errors))
		if corrected := g.correct(ctx, question, dialect, state, generated, check.Errors); corrected != "" {
			generated = corrected
		}
	}

	state.GeneratedSQL = generated
	state.RouteTo = models.RouteExecutorValidator
	return nil
}

// correct gives the model one shot at fixing a statically broken
// statement. Returns empty when correction itself fails.
func (g *SQLGenerator) correct(ctx context.Context, question, dialect string, state *models.AgentState, failedSQL string, problems []string) string {
	resp, err := g.chat.GenerateResponse(ctx,
		prompts.BuildCorrectionPrompt(question, dialect, state.TableContexts, failedSQL, problems),
		prompts.GenerationSystemMessage, 0)
	if err != nil {
		g.logger.Warn("sql correction failed", zap.Error(err))
		return ""
	}
	return llm.ExtractSQL(resp)
}
