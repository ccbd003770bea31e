package ports

import (
	"context"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

type IngestResult struct {
	DocID           string          `json:"doc_id"`
	Decision        domain.Decision `json:"decision"`
	ChunksProcessed int             `json:"chunks_processed"`
}

// DocumentIngestor runs one document through admit, conditional
// chunk/embed/upsert, and commit.
type DocumentIngestor interface {
	Ingest(ctx context.Context, payload domain.DocumentPayload) (*IngestResult, error)
}

// DocumentReindexer refetches a known document and forces re-processing
// regardless of hash match.
type DocumentReindexer interface {
	Reindex(ctx context.Context, docID string) (*IngestResult, error)
}

// SourceSyncer reconciles the ledger with one upstream source inside a
// SyncRun bracket.
type SourceSyncer interface {
	Sync(ctx context.Context, source string, syncType domain.SyncType) (*domain.SyncRun, error)
}

type CleanupReport struct {
	EventsDeleted int64 `json:"events_deleted"`
	RunsDeleted   int64 `json:"runs_deleted"`
}

// MaintenanceService covers the idempotent administrative routines.
type MaintenanceService interface {
	Cleanup(ctx context.Context, eventRetention, runRetention time.Duration) (*CleanupReport, error)
	Stats(ctx context.Context) (*domain.CorpusStats, error)
}

type HealthReport struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Qdrant   string `json:"qdrant"`
}

func (r HealthReport) Healthy() bool {
	return r.Status == "healthy"
}

// HealthChecker reports storage reachability independent of any downstream
// pipeline state.
type HealthChecker interface {
	Check(ctx context.Context) HealthReport
}
