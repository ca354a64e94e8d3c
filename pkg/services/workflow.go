package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// Workflow drives one question through the three stages, following the
// route the error router sets after each failed attempt.
type Workflow struct {
	selector  *SchemaSelector
	generator *SQLGenerator
	executor  *ExecutorValidator
	logger    *zap.Logger
}

// NewWorkflow creates a Workflow.
func NewWorkflow(selector *SchemaSelector, generator *SQLGenerator, executor *ExecutorValidator, logger *zap.Logger) *Workflow {
	return &Workflow{
		selector:  selector,
		generator: generator,
		executor:  executor,
		logger:    logger.Named("workflow"),
	}
}

// Run processes a question against a ready knowledge graph. It always
// returns an outcome for pipeline-level failures; the error return is for
// infrastructure problems (graph not ready, store unavailable).
// clarifications carries the user's answer after a NeedsClarification
// outcome and may be empty.
func (w *Workflow) Run(ctx context.Context, kgID uuid.UUID, question, clarifications, dialect string, exec datasource.QueryExecutor, maxRetries int) (*models.QueryOutcome, error) {
	state := &models.AgentState{
		KGID:           kgID,
		UserQuestion:   question,
		Clarifications: clarifications,
		MaxRetries:     maxRetries,
		RouteTo:        models.RouteSchemaSelector,
	}

	// Each retry revisits at most two stages, plus the initial pass.
	maxSteps := 3 * (1 + maxRetries)

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state.RouteTo {
		case models.RouteSchemaSelector:
			outcome, err := w.selector.Run(ctx, state)
			if err != nil {
				return nil, err
			}
			if outcome != nil {
				return outcome, nil
			}

		case models.RouteSQLGenerator:
			if err := w.generator.Run(ctx, state, dialect); err != nil {
				return nil, err
			}

		case models.RouteExecutorValidator:
			outcome, err := w.executor.Run(ctx, state, exec)
			if err != nil {
				return nil, err
			}
			if outcome != nil {
				return outcome, nil
			}

		case models.RouteComplete:
			// Unreachable: terminal paths return an outcome above.
			return nil, fmt.Errorf("pipeline completed without an outcome")

		default:
			return nil, fmt.Errorf("unknown route target %q", state.RouteTo)
		}
	}

	w.logger.Warn("pipeline step budget exhausted",
		zap.String("kg_id", kgID.String()),
		zap.Int("retries", state.RetryCount))

	return &models.QueryOutcome{
		Kind:          models.OutcomeFailure,
		Question:      question,
		SQL:           state.GeneratedSQL,
		Attempts:      state.RetryCount + 1,
		ErrorMessage:  "retry budget exhausted without a successful execution",
		ErrorCategory: models.ErrCatUnknown,
		ErrorHistory:  state.Errors,
	}, nil
}
