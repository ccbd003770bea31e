package bootstrap

import (
	"context"
	"fmt"

	"github.com/blacksynapse/ingest-worker/internal/config"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
	"github.com/blacksynapse/ingest-worker/internal/core/usecase"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/chunking"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/embedding/openai"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/queue/nats"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/repository/postgres"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/resilience"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/source/httpfeed"
	"github.com/blacksynapse/ingest-worker/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Ledger ports.DocumentLedger
	Events ports.EventLog
	Runs   ports.SyncRunStore
	Queue  *nats.Queue

	IngestUC    ports.DocumentIngestor
	ReindexUC   ports.DocumentReindexer
	SyncUC      ports.SourceSyncer
	Maintenance ports.MaintenanceService
	Health      ports.HealthChecker

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ledger := postgres.NewLedgerRepository(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	events := postgres.NewEventRepository(db)
	runs := postgres.NewSyncRunRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	embedder := openai.New(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingAPIKey, executor)
	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	chunker := chunking.NewSplitter(cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)

	connectors := make(map[string]ports.SourceConnector)
	for name, feedURL := range config.ParseSourceFeeds(cfg.SourceFeeds) {
		connectors[name] = httpfeed.New(name, feedURL, cfg.SourceFeedAPIKey)
	}

	ingestUC := usecase.NewIngestUseCase(ledger, events, chunker, embedder, vectors)
	reindexUC := usecase.NewReindexUseCase(ledger, connectors, ingestUC)
	syncUC := usecase.NewSyncUseCase(runs, ledger, events, ingestUC, connectors, cfg.SyncWorkers)
	maintenanceUC := usecase.NewMaintenanceUseCase(ledger, events, runs)
	healthUC := usecase.NewHealthUseCase(ledger, vectors)

	return &App{
		Config: cfg,

		Ledger: ledger,
		Events: events,
		Runs:   runs,
		Queue:  queue,

		IngestUC:    ingestUC,
		ReindexUC:   reindexUC,
		SyncUC:      syncUC,
		Maintenance: maintenanceUC,
		Health:      healthUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
