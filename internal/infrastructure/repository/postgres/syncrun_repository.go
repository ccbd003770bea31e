package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

type SyncRunRepository struct {
	db *sql.DB
}

func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	metaJSON, err := metadataJSON(run.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "create sync run", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO sync_runs (id, source, sync_type, status, started_at, documents_processed, documents_deleted, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, run.ID, run.Source, string(run.Type), string(run.Status), run.StartedAt,
		run.DocumentsProcessed, run.DocumentsDeleted, metaJSON)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "create sync run", err)
	}
	return nil
}

// AddProgress applies counter deltas while the run is still running.
// Increments arriving after the run turned terminal are dropped; counters
// never decrement.
func (r *SyncRunRepository) AddProgress(ctx context.Context, runID string, processedDelta, deletedDelta int) error {
	if processedDelta < 0 || deletedDelta < 0 {
		return domain.WrapError(domain.ErrValidation, "add sync progress", fmt.Errorf("negative delta"))
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE sync_runs
SET documents_processed = documents_processed + $2,
	documents_deleted = documents_deleted + $3
WHERE id = $1 AND status = $4
`, runID, processedDelta, deletedDelta, string(domain.SyncRunning))
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "add sync progress", err)
	}
	return nil
}

// Close transitions a running run to its terminal status. Closing an
// already-terminal run returns the stored row unchanged rather than erroring,
// so retried orchestration can call it twice safely.
func (r *SyncRunRepository) Close(ctx context.Context, runID string, status domain.SyncStatus, errorMessage string) (*domain.SyncRun, error) {
	if status != domain.SyncCompleted && status != domain.SyncFailed {
		return nil, domain.WrapError(domain.ErrValidation, "close sync run", fmt.Errorf("non-terminal status %q", status))
	}
	if status == domain.SyncFailed && errorMessage == "" {
		return nil, domain.WrapError(domain.ErrValidation, "close sync run", fmt.Errorf("failed run requires an error message"))
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE sync_runs
SET status = $2, completed_at = NOW(), error_message = NULLIF($3, '')
WHERE id = $1 AND status = $4
RETURNING `+syncRunColumns+`
`, runID, string(status), domain.TruncateErrorMessage(errorMessage), string(domain.SyncRunning))

	run, err := scanSyncRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrPersistence, "close sync run", err)
	}
	// Not running: either already terminal (no-op) or unknown.
	return r.GetByID(ctx, runID)
}

func (r *SyncRunRepository) GetByID(ctx context.Context, runID string) (*domain.SyncRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+syncRunColumns+` FROM sync_runs WHERE id = $1
`, runID)

	run, err := scanSyncRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSyncRunNotFound, "get sync run", fmt.Errorf("id=%s", runID))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "get sync run", err)
	}
	return run, nil
}

func (r *SyncRunRepository) ListRecent(ctx context.Context, source string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT ` + syncRunColumns + `
FROM sync_runs
`
	args := []any{}
	if source != "" {
		query += "WHERE source = $1\n"
		args = append(args, source)
	}
	query += fmt.Sprintf("ORDER BY started_at DESC\nLIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list sync runs", err)
	}
	defer rows.Close()

	out := make([]domain.SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan sync run", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate sync runs", err)
	}
	return out, nil
}

// DeleteCompletedBefore removes old completed runs only; failed runs are kept
// for operator review until removed explicitly.
func (r *SyncRunRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM sync_runs WHERE status = $1 AND completed_at < $2
`, string(domain.SyncCompleted), cutoff)
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "delete old sync runs", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "delete old sync runs rows affected", err)
	}
	return deleted, nil
}

const syncRunColumns = `id, source, sync_type, status, started_at, completed_at, documents_processed, documents_deleted, error_message, metadata`

type syncRunScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncRun(row syncRunScanner) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var syncType, status string
	var completedAt sql.NullTime
	var errorMessage sql.NullString
	var metaRaw []byte

	err := row.Scan(
		&run.ID, &run.Source, &syncType, &status, &run.StartedAt, &completedAt,
		&run.DocumentsProcessed, &run.DocumentsDeleted, &errorMessage, &metaRaw,
	)
	if err != nil {
		return nil, err
	}
	run.Type = domain.SyncType(syncType)
	run.Status = domain.SyncStatus(status)
	run.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &run.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal sync run metadata: %w", err)
		}
	}
	return &run, nil
}
