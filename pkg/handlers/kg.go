package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
)

// KGService covers the knowledge graph lifecycle operations the handler
// needs.
type KGService interface {
	ConnectOrBuildKG(ctx context.Context, connCfg *datasource.ConnectionConfig) (*models.KnowledgeGraph, error)
	GetKG(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error)
	ListKGs(ctx context.Context) ([]*models.KnowledgeGraph, error)
	RebuildKG(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error)
	DeleteKG(ctx context.Context, kgID uuid.UUID) error
}

// KGHandler manages knowledge graph lifecycle endpoints.
type KGHandler struct {
	service KGService
	logger  *zap.Logger
}

// NewKGHandler creates a new KGHandler.
func NewKGHandler(service KGService, logger *zap.Logger) *KGHandler {
	return &KGHandler{service: service, logger: logger}
}

// RegisterRoutes registers the KG handler's routes on the given mux.
func (h *KGHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/kgs", h.Connect)
	mux.HandleFunc("GET /api/kgs", h.List)
	mux.HandleFunc("GET /api/kgs/{kg_id}", h.Get)
	mux.HandleFunc("POST /api/kgs/{kg_id}/rebuild", h.Rebuild)
	mux.HandleFunc("DELETE /api/kgs/{kg_id}", h.Delete)
}

// ConnectRequest is the body of POST /api/kgs.
type ConnectRequest struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// Connect handles POST /api/kgs. It maps a source database to its
// knowledge graph, starting a build on first contact. Responds 202 while
// the graph is building and 200 when it is already ready.
func (h *KGHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Type == "" || req.Host == "" || req.Database == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "type, host, and database are required")
		return
	}

	kg, err := h.service.ConnectOrBuildKG(r.Context(), &datasource.ConnectionConfig{
		Type:     req.Type,
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: req.Password,
		SSLMode:  req.SSLMode,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConnection) {
			_ = ErrorResponse(w, http.StatusBadGateway, "connection_failed", err.Error())
			return
		}
		h.logger.Error("connect failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := http.StatusOK
	if kg.Status == models.KGStatusBuilding {
		status = http.StatusAccepted
	}
	_ = WriteJSON(w, status, kg)
}

// List handles GET /api/kgs.
func (h *KGHandler) List(w http.ResponseWriter, r *http.Request) {
	kgs, err := h.service.ListKGs(r.Context())
	if err != nil {
		h.logger.Error("list failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if kgs == nil {
		kgs = []*models.KnowledgeGraph{}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"knowledge_graphs": kgs})
}

// Get handles GET /api/kgs/{kg_id}. Clients poll this while a build runs.
func (h *KGHandler) Get(w http.ResponseWriter, r *http.Request) {
	kgID, ok := parseKGID(w, r)
	if !ok {
		return
	}

	kg, err := h.service.GetKG(r.Context(), kgID)
	if err != nil {
		writeKGError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, kg)
}

// Rebuild handles POST /api/kgs/{kg_id}/rebuild.
func (h *KGHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	kgID, ok := parseKGID(w, r)
	if !ok {
		return
	}

	kg, err := h.service.RebuildKG(r.Context(), kgID)
	if err != nil {
		writeKGError(w, h.logger, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, kg)
}

// Delete handles DELETE /api/kgs/{kg_id}.
func (h *KGHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kgID, ok := parseKGID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteKG(r.Context(), kgID); err != nil {
		writeKGError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseKGID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	kgID, err := uuid.Parse(r.PathValue("kg_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid knowledge graph ID")
		return uuid.Nil, false
	}
	return kgID, true
}

func writeKGError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrKGNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "knowledge graph not found")
	case errors.Is(err, apperrors.ErrKGNotReady):
		_ = ErrorResponse(w, http.StatusConflict, "kg_not_ready", err.Error())
	case errors.Is(err, apperrors.ErrConnection):
		_ = ErrorResponse(w, http.StatusBadGateway, "connection_failed", err.Error())
	default:
		logger.Error("knowledge graph operation failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
