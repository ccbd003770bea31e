package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	title TEXT,
	uri TEXT,
	author TEXT,
	created_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	content_hash TEXT UNIQUE,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents(processed_at);

CREATE TABLE IF NOT EXISTS ingestion_events (
	id BIGSERIAL PRIMARY KEY,
	doc_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	message TEXT,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_ingestion_events_doc_id ON ingestion_events(doc_id);
CREATE INDEX IF NOT EXISTS idx_ingestion_events_occurred_at ON ingestion_events(occurred_at);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	documents_processed INTEGER NOT NULL DEFAULT 0,
	documents_deleted INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_source_started_at ON sync_runs(source, started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentColumns = `doc_id, source, title, uri, author, created_at, updated_at, processed_at, content_hash, is_deleted, chunk_count, metadata`

func (r *LedgerRepository) GetByDocID(ctx context.Context, docID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE doc_id = $1
`, docID)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("doc_id=%s", docID))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "get document", err)
	}
	return doc, nil
}

func (r *LedgerRepository) FindDocIDByContentHash(ctx context.Context, contentHash string) (string, error) {
	if contentHash == "" {
		return "", nil
	}
	var docID string
	err := r.db.QueryRowContext(ctx, `
SELECT doc_id FROM documents WHERE content_hash = $1
`, contentHash).Scan(&docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", domain.WrapError(domain.ErrPersistence, "find by content hash", err)
	}
	return docID, nil
}

// Commit upserts the document row and appends one audit event in a single
// transaction, so a reader never observes the row without its event. The
// ON CONFLICT clause resolves the race between two concurrent commits for
// the same doc_id (last writer wins); a unique violation on content_hash
// means another doc_id landed byte-identical content first and is reported
// as the duplicate-content kind, not as a persistence failure.
func (r *LedgerRepository) Commit(ctx context.Context, doc *domain.Document, ev domain.Event) error {
	metaJSON, err := metadataJSON(doc.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "commit document", err)
	}
	evMetaJSON, err := metadataJSON(ev.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "commit document", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "begin commit tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (
	doc_id, source, title, uri, author, created_at, updated_at, content_hash, chunk_count, is_deleted, processed_at, metadata
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,NOW(),$10)
ON CONFLICT (doc_id) DO UPDATE SET
	source = EXCLUDED.source,
	title = EXCLUDED.title,
	uri = EXCLUDED.uri,
	author = EXCLUDED.author,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	content_hash = EXCLUDED.content_hash,
	chunk_count = EXCLUDED.chunk_count,
	processed_at = NOW(),
	is_deleted = FALSE,
	metadata = EXCLUDED.metadata
`,
		doc.DocID, doc.Source, nullIfEmpty(doc.Title), nullIfEmpty(doc.URI), nullIfEmpty(doc.Author),
		doc.CreatedAt, doc.UpdatedAt, nullIfEmpty(doc.ContentHash), doc.ChunkCount, metaJSON,
	)
	if err != nil {
		return classifyCommitError(err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ingestion_events (doc_id, event_type, message, metadata)
VALUES ($1,$2,$3,$4)
`, ev.DocID, string(ev.Type), nullIfEmpty(ev.Message), evMetaJSON); err != nil {
		return domain.WrapError(domain.ErrPersistence, "append commit event", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrPersistence, "commit tx", err)
	}
	return nil
}

func (r *LedgerRepository) MarkDeleted(ctx context.Context, docIDs []string) ([]string, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
UPDATE documents
SET is_deleted = TRUE, updated_at = NOW()
WHERE doc_id = ANY($1) AND is_deleted = FALSE
RETURNING doc_id
`, docIDs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "mark deleted", err)
	}
	defer rows.Close()

	affected := make([]string, 0, len(docIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan deleted id", err)
		}
		affected = append(affected, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate deleted ids", err)
	}
	return affected, nil
}

func (r *LedgerRepository) ListActiveDocIDs(ctx context.Context, source string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT doc_id FROM documents WHERE source = $1 AND is_deleted = FALSE
`, source)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list active doc ids", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan doc id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate doc ids", err)
	}
	return out, nil
}

func (r *LedgerRepository) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT source, COUNT(*), COALESCE(SUM(chunk_count), 0), ROUND(AVG(chunk_count)::numeric, 2)::float8
FROM documents
WHERE is_deleted = FALSE
GROUP BY source
ORDER BY source
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query source stats", err)
	}
	defer rows.Close()

	stats := &domain.CorpusStats{Sources: make([]domain.SourceStats, 0)}
	for rows.Next() {
		var s domain.SourceStats
		if err := rows.Scan(&s.Source, &s.Documents, &s.Chunks, &s.AvgChunks); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan source stats", err)
		}
		stats.Sources = append(stats.Sources, s)
		stats.TotalDocuments += s.Documents
		stats.TotalChunks += s.Chunks
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate source stats", err)
	}

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `
SELECT MAX(processed_at) FROM documents WHERE is_deleted = FALSE
`).Scan(&last); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "query last processed", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastProcessedAt = &t
	}
	return stats, nil
}

func (r *LedgerRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.WrapError(domain.ErrPersistence, "ping", err)
	}
	return nil
}

func classifyCommitError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "content_hash") {
		return domain.WrapError(domain.ErrDuplicateContent, "commit document", err)
	}
	return domain.WrapError(domain.ErrPersistence, "commit document", err)
}

type documentScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row documentScanner) (*domain.Document, error) {
	var doc domain.Document
	var title, uri, author, hash sql.NullString
	var createdAt, updatedAt sql.NullTime
	var metaRaw []byte

	err := row.Scan(
		&doc.DocID, &doc.Source, &title, &uri, &author,
		&createdAt, &updatedAt, &doc.ProcessedAt, &hash,
		&doc.IsDeleted, &doc.ChunkCount, &metaRaw,
	)
	if err != nil {
		return nil, err
	}

	doc.Title = title.String
	doc.URI = uri.String
	doc.Author = author.String
	doc.ContentHash = hash.String
	if createdAt.Valid {
		t := createdAt.Time
		doc.CreatedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		doc.UpdatedAt = &t
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

func metadataJSON(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte(`{}`), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
