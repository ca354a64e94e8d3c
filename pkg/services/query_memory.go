package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
)

// QueryMemory records pipeline outcomes and retrieves past successful
// queries as few-shot examples for the SQL generator.
type QueryMemory struct {
	queryLog repositories.QueryLogRepository
	embed    llm.Client
	k        int
	logger   *zap.Logger
}

// NewQueryMemory creates a QueryMemory. k is the number of similar queries
// retrieved per question.
func NewQueryMemory(queryLog repositories.QueryLogRepository, embed llm.Client, k int, logger *zap.Logger) *QueryMemory {
	if k <= 0 {
		k = 5
	}
	return &QueryMemory{
		queryLog: queryLog,
		embed:    embed,
		k:        k,
		logger:   logger.Named("query-memory"),
	}
}

// SimilarQueries returns past successful queries close to the question.
// Retrieval failures degrade to no examples instead of failing the run.
func (m *QueryMemory) SimilarQueries(ctx context.Context, kgID uuid.UUID, question string) []models.SimilarQuery {
	vec, err := m.embed.CreateEmbedding(ctx, question)
	if err != nil {
		m.logger.Warn("question embedding failed, skipping example retrieval", zap.Error(err))
		return nil
	}

	similar, err := m.queryLog.SearchSimilar(ctx, kgID, vec, m.k)
	if err != nil {
		m.logger.Warn("similar query search failed", zap.Error(err))
		return nil
	}
	return similar
}

// RecordSuccess logs a successful run and embeds the question so the run
// can serve as a future example. Returns the log entry ID.
func (m *QueryMemory) RecordSuccess(ctx context.Context, state *models.AgentState, elapsed time.Duration) (uuid.UUID, error) {
	entry := &models.QueryLogEntry{
		ID:              uuid.New(),
		KGID:            state.KGID,
		UserQuestion:    state.UserQuestion,
		RefinedQuestion: state.RefinedQuestion,
		SelectedTables:  state.SelectedTableNames(),
		GeneratedSQL:    state.GeneratedSQL,
		Success:         true,
		ExecutionTimeMs: elapsed.Milliseconds(),
		TablesUsed:      state.SelectedTableNames(),
		Iterations:      state.RetryCount + 1,
		Confidence:      confidenceFor(state),
	}

	if vec, err := m.embed.CreateEmbedding(ctx, state.UserQuestion); err == nil {
		entry.QueryEmbedding = vec
	} else {
		m.logger.Warn("question embedding failed, entry stored without vector", zap.Error(err))
	}

	if err := m.queryLog.Insert(ctx, entry); err != nil {
		return uuid.Nil, fmt.Errorf("record query success: %w", err)
	}
	return entry.ID, nil
}

// RecordFailure logs a terminally failed run. Failed entries never serve
// as examples but remain visible for feedback and diagnostics.
func (m *QueryMemory) RecordFailure(ctx context.Context, state *models.AgentState, category, message string) (uuid.UUID, error) {
	entry := &models.QueryLogEntry{
		ID:              uuid.New(),
		KGID:            state.KGID,
		UserQuestion:    state.UserQuestion,
		RefinedQuestion: state.RefinedQuestion,
		SelectedTables:  state.SelectedTableNames(),
		GeneratedSQL:    state.GeneratedSQL,
		Success:         false,
		ErrorMessage:    message,
		ErrorCategory:   category,
		Iterations:      state.RetryCount + 1,
	}

	if err := m.queryLog.Insert(ctx, entry); err != nil {
		return uuid.Nil, fmt.Errorf("record query failure: %w", err)
	}
	return entry.ID, nil
}

// SubmitFeedback attaches user feedback to a past query.
func (m *QueryMemory) SubmitFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error {
	return m.queryLog.UpdateFeedback(ctx, queryID, feedback, rating)
}

// Get returns one logged query.
func (m *QueryMemory) Get(ctx context.Context, queryID uuid.UUID) (*models.QueryLogEntry, error) {
	return m.queryLog.GetByID(ctx, queryID)
}

// confidenceFor scores a run by how cleanly it completed. A first-attempt
// success scores 1.0 and each retry discounts it.
func confidenceFor(state *models.AgentState) float64 {
	c := 1.0 - 0.2*float64(state.RetryCount)
	if c < 0.2 {
		c = 0.2
	}
	return c
}
