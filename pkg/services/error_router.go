package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/prompts"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
)

// knownPatternLimit bounds how many recurring patterns the classify
// prompt carries.
const knownPatternLimit = 5

// ErrorRouter classifies a failed attempt and decides which stage runs
// next. Terminal failures stop the pipeline; everything else is routed to
// the schema selector or the SQL generator with guidance.
type ErrorRouter struct {
	chat     llm.Client
	patterns repositories.ErrorPatternRepository
	logger   *zap.Logger
}

// NewErrorRouter creates an ErrorRouter. patterns may be nil; the router
// then classifies without recurring-failure context.
func NewErrorRouter(chat llm.Client, patterns repositories.ErrorPatternRepository, logger *zap.Logger) *ErrorRouter {
	return &ErrorRouter{
		chat:     chat,
		patterns: patterns,
		logger:   logger.Named("error-router"),
	}
}

// Classify labels a failure using the LLM, falling back to keyword
// heuristics when the model is unavailable or returns garbage. The second
// return value is guidance for the stage retrying the work.
func (r *ErrorRouter) Classify(ctx context.Context, state *models.AgentState, errorMessage string) (models.Classification, string) {
	var known []models.ErrorPattern
	if r.patterns != nil {
		// Narrow to patterns touching the tables this attempt used; the
		// category is not known yet, so no category filter here.
		var perr error
		known, perr = r.patterns.ListActive(ctx, state.KGID, "", state.SelectedTableNames(), knownPatternLimit)
		if perr != nil {
			r.logger.Warn("error patterns unavailable", zap.Error(perr))
		}
	}

	resp, err := r.chat.GenerateResponse(ctx,
		prompts.BuildClassifyPrompt(state.UserQuestion, state.GeneratedSQL, errorMessage, state.SelectedTableNames(), state.Errors, known),
		prompts.ClassifySystemMessage, 0)
	if err == nil {
		if parsed, perr := llm.ParseJSONResponse[prompts.ClassifyResponse](resp); perr == nil && knownCategory(parsed.Category) {
			return models.Classification{
				Category:        parsed.Category,
				IsSchemaRelated: parsed.IsSchemaRelated,
				IsTerminal:      parsed.IsTerminal,
				Explanation:     parsed.Explanation,
			}, parsed.Guidance
		}
	} else {
		r.logger.Warn("llm classification failed, using heuristics", zap.Error(err))
	}

	c := heuristicClassification(errorMessage)
	return c, ""
}

// Route turns a classification into the next pipeline step. Order
// matters: terminal categories end the run before the retry budget is
// consulted, and a category that keeps recurring stops the run instead of
// thrashing between the two upstream stages.
func (r *ErrorRouter) Route(state *models.AgentState, c models.Classification, guidance string) models.RoutingDecision {
	if c.IsTerminal || models.TerminalCategories[c.Category] {
		return models.RoutingDecision{Target: models.RouteComplete, Terminal: true}
	}
	if state.RetriesExhausted() {
		return models.RoutingDecision{Target: models.RouteComplete, Terminal: true}
	}

	target := models.RouteSQLGenerator
	if c.IsSchemaRelated {
		target = models.RouteSchemaSelector
	}

	// Same category failing twice on the same route means that route
	// can't fix it. Flip once; a third occurrence is terminal.
	occurrences := 0
	lastTarget := models.RouteTarget("")
	for _, e := range state.Errors {
		if e.Category == c.Category {
			occurrences++
			lastTarget = e.RoutedTo
		}
	}
	if occurrences >= 2 {
		return models.RoutingDecision{Target: models.RouteComplete, Terminal: true}
	}
	if occurrences == 1 && lastTarget == target {
		if target == models.RouteSQLGenerator {
			target = models.RouteSchemaSelector
		} else {
			target = models.RouteSQLGenerator
		}
	}

	return models.RoutingDecision{Target: target, Guidance: guidance}
}

func knownCategory(category string) bool {
	switch category {
	case models.ErrCatMissingTable, models.ErrCatMissingColumn, models.ErrCatWrongJoin,
		models.ErrCatSQLSyntax, models.ErrCatTypeMismatch, models.ErrCatAmbiguous,
		models.ErrCatImpossible, models.ErrCatPermission, models.ErrCatConnectionFailed,
		models.ErrCatTimeout, models.ErrCatEmptyResult, models.ErrCatUnknown:
		return true
	}
	return false
}

// heuristicClassification maps common database error text onto
// categories. It backs up the LLM, so it only needs to catch the obvious
// shapes.
func heuristicClassification(errorMessage string) models.Classification {
	lower := strings.ToLower(errorMessage)

	switch {
	case strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "invalid object name"),
		strings.Contains(lower, "no such table"):
		return models.Classification{Category: models.ErrCatMissingTable, IsSchemaRelated: true}
	case strings.Contains(lower, "column") && (strings.Contains(lower, "does not exist") || strings.Contains(lower, "unknown") || strings.Contains(lower, "invalid")):
		return models.Classification{Category: models.ErrCatMissingColumn, IsSchemaRelated: true}
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "incorrect syntax"):
		return models.Classification{Category: models.ErrCatSQLSyntax}
	case strings.Contains(lower, "cannot be matched") && strings.Contains(lower, "join"),
		strings.Contains(lower, "ambiguous column"):
		return models.Classification{Category: models.ErrCatWrongJoin}
	case strings.Contains(lower, "operator does not exist"),
		strings.Contains(lower, "invalid input syntax"),
		strings.Contains(lower, "conversion failed"),
		strings.Contains(lower, "cannot cast"):
		return models.Classification{Category: models.ErrCatTypeMismatch}
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"):
		return models.Classification{Category: models.ErrCatPermission, IsTerminal: true}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "canceling statement"):
		return models.Classification{Category: models.ErrCatTimeout, IsTerminal: true}
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "connect:"),
		strings.Contains(lower, "no such host"):
		return models.Classification{Category: models.ErrCatConnectionFailed, IsTerminal: true}
	}

	return models.Classification{Category: models.ErrCatUnknown}
}
