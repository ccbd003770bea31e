package ports

import (
	"context"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

// DocumentLedger is the durable record of which documents exist, their
// content fingerprints and lifecycle flags. Correctness under concurrent
// same-key writes is delegated to the store's upsert and unique-constraint
// semantics, not to application locks.
type DocumentLedger interface {
	// GetByDocID returns the current row or a domain.ErrDocumentNotFound kind.
	GetByDocID(ctx context.Context, docID string) (*domain.Document, error)
	// FindDocIDByContentHash returns the doc_id holding the hash, or "".
	FindDocIDByContentHash(ctx context.Context, contentHash string) (string, error)
	// Commit upserts the row keyed on doc_id and appends one event in the
	// same transaction. Safe to repeat with identical inputs. A unique
	// violation on content_hash surfaces as a domain.ErrDuplicateContent kind.
	Commit(ctx context.Context, doc *domain.Document, ev domain.Event) error
	// MarkDeleted soft-deletes the given ids and returns the ids actually
	// flipped; unknown or already-deleted ids are silently skipped.
	MarkDeleted(ctx context.Context, docIDs []string) ([]string, error)
	ListActiveDocIDs(ctx context.Context, source string) ([]string, error)
	Stats(ctx context.Context) (*domain.CorpusStats, error)
	Ping(ctx context.Context) error
}

// EventLog is the append-only ingestion audit trail.
type EventLog interface {
	Append(ctx context.Context, ev domain.Event) error
	ListByDocID(ctx context.Context, docID string, limit int) ([]domain.Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncRunStore tracks source synchronization passes.
type SyncRunStore interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	// AddProgress applies monotonic counter increments; increments arriving
	// after the run turned terminal are dropped.
	AddProgress(ctx context.Context, runID string, processedDelta, deletedDelta int) error
	// Close sets the terminal status. Closing an already-terminal run is a
	// no-op that returns the existing terminal row.
	Close(ctx context.Context, runID string, status domain.SyncStatus, errorMessage string) (*domain.SyncRun, error)
	GetByID(ctx context.Context, runID string) (*domain.SyncRun, error)
	ListRecent(ctx context.Context, source string, limit int) ([]domain.SyncRun, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Chunker splits normalized text into embeddable fragments.
type Chunker interface {
	Split(text string) []string
}

// Embedder builds vectors for chunk batches.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore owns the chunk vectors for a document.
type VectorStore interface {
	// UpsertChunks replaces the document's chunk set with the given one.
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	DeleteByDocID(ctx context.Context, docID string) error
	Health(ctx context.Context) error
}

// JobQueue carries batch-ingest payloads from the api to the worker.
type JobQueue interface {
	PublishIngestJob(ctx context.Context, payload domain.DocumentPayload) error
	SubscribeIngestJobs(ctx context.Context, handler func(context.Context, domain.DocumentPayload) error) error
}

// SourceConnector exposes one upstream system's current document set.
type SourceConnector interface {
	Source() string
	ListDocuments(ctx context.Context) ([]domain.DocumentPayload, error)
	GetDocument(ctx context.Context, docID string) (*domain.DocumentPayload, error)
}
