package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
	_ "github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource/mssql"
	_ "github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource/postgres"
	"github.com/kgraph-ai/kgraph-engine/pkg/config"
	"github.com/kgraph-ai/kgraph-engine/pkg/database"
	"github.com/kgraph-ai/kgraph-engine/pkg/handlers"
	"github.com/kgraph-ai/kgraph-engine/pkg/llm"
	"github.com/kgraph-ai/kgraph-engine/pkg/logging"
	"github.com/kgraph-ai/kgraph-engine/pkg/repositories"
	"github.com/kgraph-ai/kgraph-engine/pkg/services"
	"github.com/kgraph-ai/kgraph-engine/pkg/services/workqueue"
	"github.com/kgraph-ai/kgraph-engine/pkg/vectorindex"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("kgraph-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connString := cfg.KGStore.ConnectionString()
	if err := database.RunMigrations(connString, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connString,
		MaxConnections: cfg.KGStore.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to kg store: %w", err)
	}
	defer db.Close()

	index, err := vectorindex.New(cfg.VectorIndex.PersistDir, cfg.VectorIndex.Compress, logger)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}

	factory := llm.NewFactory(&cfg.AI, logger)
	chat, err := factory.CreateChatClient()
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}
	embed, err := factory.CreateEmbeddingClient()
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}

	kgRepo := repositories.NewKGRepository(db)
	schemaRepo := repositories.NewSchemaRepository(db)
	embRepo := repositories.NewEmbeddingRepository(db)
	queryLogRepo := repositories.NewQueryLogRepository(db)
	patternRepo := repositories.NewErrorPatternRepository(db)
	summaryRepo := repositories.NewErrorSummaryRepository(db)

	queue := workqueue.New(4, logger)
	pool := llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger)

	extractor := services.NewSchemaExtractor(&cfg.Agents, logger)
	builder := services.NewKGBuilder(extractor, kgRepo, schemaRepo, embRepo, index,
		chat, embed, pool, &cfg.Agents, &cfg.AI, logger)
	manager := services.NewKGManager(kgRepo, schemaRepo, embRepo, index, logger)

	memory := services.NewQueryMemory(queryLogRepo, embed, cfg.Agents.SimilarQueriesK, logger)
	lessons := services.NewErrorSummaryService(summaryRepo, chat, queue, cfg.Agents.CompressionThreshold, logger)

	selector := services.NewSchemaSelector(manager, index, chat, embed, lessons, cfg.Agents.VectorTopK, logger)
	generator := services.NewSQLGenerator(chat, memory, lessons, logger)
	router := services.NewErrorRouter(chat, patternRepo, logger)
	executor := services.NewExecutorValidator(router, memory, lessons, patternRepo,
		cfg.Agents.RowLimit, time.Duration(cfg.Agents.StatementTimeoutSeconds)*time.Second, logger)
	workflow := services.NewWorkflow(selector, generator, executor, logger)

	engine := services.NewEngine(cfg, kgRepo, builder, manager, workflow, memory, lessons, queue, logger)
	defer engine.Shutdown()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewKGHandler(engine, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(engine, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kgraph-engine listening",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Strings("adapters", adapterTypes()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func adapterTypes() []string {
	infos := datasource.RegisteredAdapters()
	types := make([]string, len(infos))
	for i, info := range infos {
		types[i] = info.Type
	}
	return types
}
