package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	"github.com/kgraph-ai/kgraph-engine/pkg/apperrors"
	"github.com/kgraph-ai/kgraph-engine/pkg/config"
	"github.com/kgraph-ai/kgraph-engine/pkg/models"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	"github.com/kgraph-ai/kgraph-engine/pkg/services/workqueue"
)

// Engine is the top-level facade: it owns knowledge graph lifecycle and
// question processing. Connection credentials are held in memory only;
// the durable store never sees them.
type Engine struct {
	cfg      *config.Config
	kgRepo   repositories.KGRepository
	builder  *KGBuilder
	manager  *KGManager
	workflow *Workflow
	memory   *QueryMemory
	lessons  *ErrorSummaryService
	queue    *workqueue.Queue
	logger   *zap.Logger

	mu          sync.RWMutex
	connections map[uuid.UUID]*datasource.ConnectionConfig
}

// NewEngine creates an Engine.
func NewEngine(
	cfg *config.Config,
	kgRepo repositories.KGRepository,
	builder *KGBuilder,
	manager *KGManager,
	workflow *Workflow,
	memory *QueryMemory,
	lessons *ErrorSummaryService,
	queue *workqueue.Queue,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		kgRepo:      kgRepo,
		builder:     builder,
		manager:     manager,
		workflow:    workflow,
		memory:      memory,
		lessons:     lessons,
		queue:       queue,
		logger:      logger.Named("engine"),
		connections: make(map[uuid.UUID]*datasource.ConnectionConfig),
	}
}

// ConnectOrBuildKG resolves a source database to its knowledge graph,
// creating and building one when the database is seen for the first time.
// The same database always maps to the same graph; reconnecting to a ready
// graph is a no-op, and reconnecting to a failed build retries it. Builds
// run in the background; poll the returned record's status.
func (e *Engine) ConnectOrBuildKG(ctx context.Context, connCfg *datasource.ConnectionConfig) (*models.KnowledgeGraph, error) {
	if !datasource.IsRegistered(connCfg.Type) {
		return nil, fmt.Errorf("unsupported database type %q", connCfg.Type)
	}

	// Reject unreachable databases before creating any record.
	if err := e.ping(ctx, connCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnection, err)
	}

	fingerprint := models.Fingerprint(connCfg.Host, connCfg.Port, connCfg.Database)

	kg, err := e.kgRepo.GetByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		e.registerConnection(kg.ID, connCfg)
		if kg.Status == models.KGStatusError {
			if err := e.rebuild(ctx, kg, connCfg); err != nil {
				return nil, err
			}
		}
		return kg, nil

	case errors.Is(err, apperrors.ErrKGNotFound):
		// First contact: create and build.

	default:
		return nil, err
	}

	now := time.Now()
	kg = &models.KnowledgeGraph{
		ID:                uuid.New(),
		SourceFingerprint: fingerprint,
		Status:            models.KGStatusBuilding,
		Version:           1,
		CreatedAt:         now,
		LastUpdated:       now,
	}
	if err := e.kgRepo.Create(ctx, kg); err != nil {
		return nil, err
	}
	e.registerConnection(kg.ID, connCfg)

	if err := e.enqueueBuild(kg, connCfg); err != nil {
		return nil, err
	}
	return kg, nil
}

// RebuildKG forces a fresh build of an existing graph, picking up schema
// changes in the source database.
func (e *Engine) RebuildKG(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error) {
	kg, err := e.kgRepo.GetByID(ctx, kgID)
	if err != nil {
		return nil, err
	}
	connCfg, ok := e.connection(kgID)
	if !ok {
		return nil, fmt.Errorf("%w: no connection registered for graph %s, connect first", apperrors.ErrConnection, kgID)
	}
	if err := e.rebuild(ctx, kg, connCfg); err != nil {
		return nil, err
	}
	return kg, nil
}

func (e *Engine) rebuild(ctx context.Context, kg *models.KnowledgeGraph, connCfg *datasource.ConnectionConfig) error {
	if err := e.kgRepo.UpdateStatus(ctx, kg.ID, models.KGStatusBuilding, ""); err != nil {
		return err
	}
	if err := e.kgRepo.BumpVersion(ctx, kg.ID); err != nil {
		return err
	}
	kg.Status = models.KGStatusBuilding
	e.manager.Invalidate(kg.ID)
	return e.enqueueBuild(kg, connCfg)
}

func (e *Engine) enqueueBuild(kg *models.KnowledgeGraph, connCfg *datasource.ConnectionConfig) error {
	cfgCopy := *connCfg
	task := workqueue.NewFuncTask("build-kg", "build:"+kg.ID.String(), func(ctx context.Context) error {
		disc, err := datasource.NewSchemaDiscoverer(ctx, &cfgCopy, e.logger)
		if err != nil {
			stErr := e.kgRepo.UpdateStatus(ctx, kg.ID, models.KGStatusError, err.Error())
			if stErr != nil {
				e.logger.Error("failed to record build error", zap.Error(stErr))
			}
			return err
		}
		defer disc.Close()

		err = e.builder.Build(ctx, kg, disc, func(update models.ProgressUpdate) {
			e.logger.Debug("build progress",
				zap.String("kg_id", kg.ID.String()),
				zap.String("phase", string(update.Phase)),
				zap.String("message", update.Message),
				zap.Int("completed", update.Completed),
				zap.Int("total", update.Total))
		})
		if err == nil {
			e.manager.Invalidate(kg.ID)
		}
		return err
	})
	if err := e.queue.Enqueue(task); err != nil {
		return fmt.Errorf("schedule build: %w", err)
	}
	return nil
}

// GetKG returns one knowledge graph record.
func (e *Engine) GetKG(ctx context.Context, kgID uuid.UUID) (*models.KnowledgeGraph, error) {
	return e.kgRepo.GetByID(ctx, kgID)
}

// ListKGs returns all knowledge graph records.
func (e *Engine) ListKGs(ctx context.Context) ([]*models.KnowledgeGraph, error) {
	return e.kgRepo.List(ctx)
}

// DeleteKG removes a graph and its vector collection.
func (e *Engine) DeleteKG(ctx context.Context, kgID uuid.UUID) error {
	if err := e.kgRepo.Delete(ctx, kgID); err != nil {
		return err
	}
	e.manager.Invalidate(kgID)
	e.mu.Lock()
	delete(e.connections, kgID)
	e.mu.Unlock()
	return nil
}

// ProcessQuery answers a natural-language question against a ready graph.
// clarifications carries the user's answer after a needs-clarification
// outcome; pass empty on a first ask.
func (e *Engine) ProcessQuery(ctx context.Context, kgID uuid.UUID, question, clarifications string) (*models.QueryOutcome, error) {
	connCfg, ok := e.connection(kgID)
	if !ok {
		return nil, fmt.Errorf("%w: no connection registered for graph %s, connect first", apperrors.ErrConnection, kgID)
	}

	exec, err := datasource.NewQueryExecutor(ctx, connCfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnection, err)
	}
	defer exec.Close()

	return e.workflow.Run(ctx, kgID, question, clarifications, connCfg.Type, exec, e.cfg.Agents.MaxRetries)
}

// SubmitFeedback attaches user feedback to a past query. Negative
// feedback also feeds the lesson list so later runs avoid the mistake.
func (e *Engine) SubmitFeedback(ctx context.Context, queryID uuid.UUID, feedback string, rating *int) error {
	if err := e.memory.SubmitFeedback(ctx, queryID, feedback, rating); err != nil {
		return err
	}

	entry, err := e.memory.Get(ctx, queryID)
	if err != nil {
		e.logger.Warn("feedback stored but query lookup failed", zap.Error(err))
		return nil
	}
	if err := e.lessons.LearnFromFeedback(ctx, entry, feedback, rating); err != nil {
		e.logger.Warn("feedback lesson not recorded", zap.Error(err))
	}
	return nil
}

// TaskStatus exposes background task state for polling.
func (e *Engine) TaskStatus(taskID string) (workqueue.TaskSnapshot, bool) {
	return e.queue.Status(taskID)
}

// Shutdown drains the background queue.
func (e *Engine) Shutdown() {
	e.queue.Shutdown()
}

func (e *Engine) ping(ctx context.Context, connCfg *datasource.ConnectionConfig) error {
	disc, err := datasource.NewSchemaDiscoverer(ctx, connCfg, e.logger)
	if err != nil {
		return err
	}
	defer disc.Close()
	return disc.Ping(ctx)
}

func (e *Engine) registerConnection(kgID uuid.UUID, connCfg *datasource.ConnectionConfig) {
	cfgCopy := *connCfg
	e.mu.Lock()
	e.connections[kgID] = &cfgCopy
	e.mu.Unlock()
}

func (e *Engine) connection(kgID uuid.UUID) (*datasource.ConnectionConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	connCfg, ok := e.connections[kgID]
	return connCfg, ok
}
