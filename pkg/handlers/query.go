package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// QueryService covers the question-answering operations the handler needs.
type QueryService interface {
	ProcessQuery(ctx context.Context, kgID uuid.UUID, question, clarifications string) (*models.QueryOutcome, error)
	SubmitFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error
}

// QueryHandler answers natural-language questions and collects feedback.
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{service: service, logger: logger}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/kgs/{kg_id}/query", h.Query)
	mux.HandleFunc("POST /api/queries/{query_id}/feedback", h.Feedback)
}

// QueryRequest is the body of POST /api/kgs/{kg_id}/query. Clarifications
// carries the user's answer when re-asking after a needs_clarification
// outcome.
type QueryRequest struct {
	Question       string `json:"question"`
	Clarifications string `json:"clarifications,omitempty"`
}

// Query handles POST /api/kgs/{kg_id}/query. Pipeline-level failures come
// back as 200 responses with the outcome kind set; only infrastructure
// problems map to error status codes.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	kgID, ok := parseKGID(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}

	outcome, err := h.service.ProcessQuery(r.Context(), kgID, req.Question, req.Clarifications)
	if err != nil {
		writeKGError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, outcome)
}

// FeedbackRequest is the body of POST /api/queries/{query_id}/feedback.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
	Rating   *int   `json:"rating,omitempty"`
}

// Feedback handles POST /api/queries/{query_id}/feedback.
func (h *QueryHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	queryID, err := uuid.Parse(r.PathValue("query_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid query ID")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "rating must be between 1 and 5")
		return
	}

	if err := h.service.SubmitFeedback(r.Context(), queryID, req.Feedback, req.Rating); err != nil {
		writeKGError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
