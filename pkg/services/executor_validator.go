package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	sqlcheck "github.com/kgraph-ai/kgraph-engine/pkg/sql"
)

// ExecutorValidator is the third pipeline stage. It runs the generated
// statement through static safety checks, executes it with a row cap and
// statement timeout, and on failure classifies and routes the error.
type ExecutorValidator struct {
	router      *ErrorRouter
	memory      *QueryMemory
	lessons     *ErrorSummaryService
	patterns    repositories.ErrorPatternRepository
	rowLimit    int
	stmtTimeout time.Duration
	logger      *zap.Logger
}

// NewExecutorValidator creates an ExecutorValidator.
func NewExecutorValidator(
	router *ErrorRouter,
	memory *QueryMemory,
	lessons *ErrorSummaryService,
	patterns repositories.ErrorPatternRepository,
	rowLimit int,
	stmtTimeout time.Duration,
	logger *zap.Logger,
) *ExecutorValidator {
	if rowLimit <= 0 {
		rowLimit = 10000
	}
	if stmtTimeout <= 0 {
		stmtTimeout = 30 * time.Second
	}
	return &ExecutorValidator{
		router:      router,
		memory:      memory,
		lessons:     lessons,
		patterns:    patterns,
		rowLimit:    rowLimit,
		stmtTimeout: stmtTimeout,
		logger:      logger.Named("executor-validator"),
	}
}

// Run validates and executes the SQL on the state. A nil outcome means
// the failure was routed upstream and the pipeline loops; a non-nil
// outcome ends the run.
func (e *ExecutorValidator) Run(ctx context.Context, state *models.AgentState, exec datasource.QueryExecutor) (*models.QueryOutcome, error) {
	validated := sqlcheck.ValidateAndNormalize(state.GeneratedSQL)
	if validated.Error != nil {
		return e.handleFailure(ctx, state, models.ErrCatSQLSyntax, validated.Error.Error())
	}
	normalized := validated.NormalizedSQL

	if check := sqlcheck.CheckGeneratedSQL(normalized, state.SelectedTableNames()); !check.OK() {
		return e.handleFailure(ctx, state, models.ErrCatSQLSyntax, strings.Join(check.Errors, "; "))
	}

	if findings := sqlcheck.CheckLiteralsForInjection(normalized); len(findings) > 0 {
		return e.handleFailure(ctx, state, models.ErrCatSQLSyntax,
			fmt.Sprintf("string literal %q looks like SQL injection", findings[0].Literal))
	}

	final := sqlcheck.EnsureRowLimit(normalized, e.rowLimit)

	// Planner round-trip catches bad object references without running
	// the statement.
	if err := exec.Validate(ctx, final); err != nil {
		state.GeneratedSQL = final
		return e.handleFailure(ctx, state, "", err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, e.stmtTimeout)
	defer cancel()

	start := time.Now()
	result, err := exec.Query(execCtx, final)
	elapsed := time.Since(start)
	if err != nil {
		state.GeneratedSQL = final
		return e.handleFailure(ctx, state, "", err.Error())
	}

	state.GeneratedSQL = final
	state.RouteTo = models.RouteComplete

	queryID, logErr := e.memory.RecordSuccess(ctx, state, elapsed)
	if logErr != nil {
		e.logger.Warn("query succeeded but logging failed", zap.Error(logErr))
	}

	e.logger.Info("query executed",
		zap.String("kg_id", state.KGID.String()),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", elapsed),
		zap.Int("attempt", state.RetryCount+1))

	return &models.QueryOutcome{
		Kind:       models.OutcomeSuccess,
		QueryID:    queryID,
		SQL:        final,
		Results:    toResultSet(result, elapsed),
		Question:   state.UserQuestion,
		Attempts:   state.RetryCount + 1,
		Confidence: confidenceFor(state),
	}, nil
}

// handleFailure classifies the failure and either routes the pipeline
// back upstream (nil outcome) or ends the run with a terminal outcome.
// knownCat, when non-empty, skips LLM classification for failures this
// stage detected itself.
func (e *ExecutorValidator) handleFailure(ctx context.Context, state *models.AgentState, knownCat, message string) (*models.QueryOutcome, error) {
	var classification models.Classification
	var guidance string
	if knownCat != "" {
		classification = models.Classification{Category: knownCat}
	} else {
		classification, guidance = e.router.Classify(ctx, state, message)
	}

	decision := e.router.Route(state, classification, guidance)
	e.recordPattern(ctx, state, classification.Category, message, guidance)
	if decision.Terminal {
		return e.terminalOutcome(ctx, state, classification, message)
	}

	state.RetryCount++
	state.Errors = append(state.Errors, models.ErrorRecord{
		Attempt:  state.RetryCount,
		Stage:    models.RouteExecutorValidator,
		Category: classification.Category,
		Message:  message,
		SQL:      state.GeneratedSQL,
		RoutedTo: decision.Target,
		Guidance: decision.Guidance,
	})
	state.RouteTo = decision.Target
	state.Guidance = decision.Guidance

	if lesson := e.lessons.ExtractLesson(ctx, classification.Category, message, state.GeneratedSQL, ""); lesson != "" {
		if err := e.lessons.AddLesson(ctx, state.KGID, decision.Target, lesson); err != nil {
			e.logger.Warn("lesson not recorded", zap.Error(err))
		}
	}

	e.logger.Info("query attempt failed, rerouting",
		zap.String("kg_id", state.KGID.String()),
		zap.String("category", classification.Category),
		zap.String("routed_to", string(decision.Target)),
		zap.Int("retry", state.RetryCount))

	return nil, nil
}

// terminalOutcome logs the failed run and builds the final outcome. The
// retry counter is not bumped for terminal failures; the run simply ends.
func (e *ExecutorValidator) terminalOutcome(ctx context.Context, state *models.AgentState, c models.Classification, message string) (*models.QueryOutcome, error) {
	state.RouteTo = models.RouteComplete

	queryID, logErr := e.memory.RecordFailure(ctx, state, c.Category, message)
	if logErr != nil {
		e.logger.Warn("failure logging failed", zap.Error(logErr))
	}

	if c.Category == models.ErrCatAmbiguous {
		return &models.QueryOutcome{
			Kind:                models.OutcomeNeedsClarification,
			QueryID:             queryID,
			Question:            state.UserQuestion,
			Attempts:            state.RetryCount + 1,
			ClarificationPrompt: firstNonEmpty(c.Explanation, "The question is ambiguous. Can you be more specific?"),
			ErrorHistory:        state.Errors,
		}, nil
	}

	return &models.QueryOutcome{
		Kind:          models.OutcomeFailure,
		QueryID:       queryID,
		SQL:           state.GeneratedSQL,
		Question:      state.UserQuestion,
		Attempts:      state.RetryCount + 1,
		ErrorMessage:  message,
		ErrorCategory: c.Category,
		ErrorHistory:  state.Errors,
	}, nil
}

// recordPattern upserts a deduplicated failure pattern, best effort. The
// routing guidance doubles as the fix to suggest when the pattern recurs.
func (e *ExecutorValidator) recordPattern(ctx context.Context, state *models.AgentState, category, message, fixApplied string) {
	pattern := &models.ErrorPattern{
		ID:             uuid.New(),
		KGID:           state.KGID,
		Category:       category,
		Description:    truncateWords(message, 40),
		ExampleError:   message,
		FixApplied:     fixApplied,
		AffectedTables: state.SelectedTableNames(),
	}
	if err := e.patterns.Upsert(ctx, pattern); err != nil {
		e.logger.Warn("error pattern not recorded", zap.Error(err))
	}
}

func toResultSet(result *datasource.QueryExecutionResult, elapsed time.Duration) *models.ResultSet {
	columns := make([]models.ResultColumn, len(result.Columns))
	for i, c := range result.Columns {
		columns[i] = models.ResultColumn{Name: c.Name, DataType: c.TypeName}
	}
	return &models.ResultSet{
		Columns:  columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Elapsed:  elapsed,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
