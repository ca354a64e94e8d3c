package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

type queryServiceMock struct {
	ProcessQueryFunc   func(ctx context.Context, kgID uuid.UUID, question, clarifications string) (*models.QueryOutcome, error)
	SubmitFeedbackFunc func(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error
}

func (m *queryServiceMock) ProcessQuery(ctx context.Context, kgID uuid.UUID, question, clarifications string) (*models.QueryOutcome, error) {
	return m.ProcessQueryFunc(ctx, kgID, question, clarifications)
}

func (m *queryServiceMock) SubmitFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error {
	return m.SubmitFeedbackFunc(ctx, queryID, feedback, rating)
}

func newQueryMux(service QueryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewQueryHandler(service, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestQuerySuccess(t *testing.T) {
	kgID := uuid.New()
	service := &queryServiceMock{
		ProcessQueryFunc: func(ctx context.Context, id uuid.UUID, question, clarifications string) (*models.QueryOutcome, error) {
			assert.Equal(t, kgID, id)
			assert.Equal(t, "how many orders", question)
			return &models.QueryOutcome{
				Kind:     models.OutcomeSuccess,
				SQL:      "SELECT COUNT(*) FROM public.orders LIMIT 10000",
				Attempts: 1,
				Results:  &models.ResultSet{RowCount: 1},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/kgs/"+kgID.String()+"/query",
		strings.NewReader(`{"question":"how many orders"}`))
	rec := httptest.NewRecorder()
	newQueryMux(service).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var outcome models.QueryOutcome
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
	assert.Equal(t, models.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, outcome.Results.RowCount)
}

func TestQueryClarificationIsStillOK(t *testing.T) {
	service := &queryServiceMock{
		ProcessQueryFunc: func(ctx context.Context, id uuid.UUID, question, clarifications string) (*models.QueryOutcome, error) {
			return &models.QueryOutcome{
				Kind:                models.OutcomeNeedsClarification,
				ClarificationPrompt: "Which time range?",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/kgs/"+uuid.NewString()+"/query",
		strings.NewReader(`{"question":"show performance"}`))
	rec := httptest.NewRecorder()
	newQueryMux(service).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var outcome models.QueryOutcome
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&outcome))
	assert.Equal(t, models.OutcomeNeedsClarification, outcome.Kind)
}

func TestQueryRequiresQuestion(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/kgs/"+uuid.NewString()+"/query",
		strings.NewReader(`{"question":"  "}`))
	rec := httptest.NewRecorder()
	newQueryMux(&queryServiceMock{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryKGNotReady(t *testing.T) {
	service := &queryServiceMock{
		ProcessQueryFunc: func(ctx context.Context, id uuid.UUID, question, clarifications string) (*models.QueryOutcome, error) {
			return nil, apperrors.ErrKGNotReady
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/kgs/"+uuid.NewString()+"/query",
		strings.NewReader(`{"question":"how many orders"}`))
	rec := httptest.NewRecorder()
	newQueryMux(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedbackAccepted(t *testing.T) {
	queryID := uuid.New()
	var gotRating *int
	service := &queryServiceMock{
		SubmitFeedbackFunc: func(ctx context.Context, id uuid.UUID, feedback string, rating *int) error {
			assert.Equal(t, queryID, id)
			assert.Equal(t, "wrong month grouping", feedback)
			gotRating = rating
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/queries/"+queryID.String()+"/feedback",
		strings.NewReader(`{"feedback":"wrong month grouping","rating":2}`))
	rec := httptest.NewRecorder()
	newQueryMux(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, gotRating)
	assert.Equal(t, 2, *gotRating)
}

func TestFeedbackRejectsBadRating(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/queries/"+uuid.NewString()+"/feedback",
		strings.NewReader(`{"feedback":"meh","rating":9}`))
	rec := httptest.NewRecorder()
	newQueryMux(&queryServiceMock{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
