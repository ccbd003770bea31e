package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

const defaultSyncWorkers = 4

// SyncUseCase reconciles the ledger with one upstream source inside a
// SyncRun bracket. Per-document ingest failures are recorded as failed
// events and never abort the pass; only source listing and deletion
// reconciliation errors fail the run, and a failed run is closed with its
// error message rather than surfaced as a Sync error.
type SyncUseCase struct {
	runs       ports.SyncRunStore
	ledger     ports.DocumentLedger
	events     ports.EventLog
	ingestor   ports.DocumentIngestor
	connectors map[string]ports.SourceConnector
	workers    int
}

func NewSyncUseCase(
	runs ports.SyncRunStore,
	ledger ports.DocumentLedger,
	events ports.EventLog,
	ingestor ports.DocumentIngestor,
	connectors map[string]ports.SourceConnector,
	workers int,
) *SyncUseCase {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	return &SyncUseCase{
		runs:       runs,
		ledger:     ledger,
		events:     events,
		ingestor:   ingestor,
		connectors: connectors,
		workers:    workers,
	}
}

func (uc *SyncUseCase) Sync(ctx context.Context, source string, syncType domain.SyncType) (*domain.SyncRun, error) {
	if strings.TrimSpace(source) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "sync", fmt.Errorf("source is required"))
	}
	conn, ok := uc.connectors[source]
	if !ok {
		return nil, domain.WrapError(domain.ErrValidation, "sync", fmt.Errorf("unknown source %q", source))
	}

	run := domain.NewSyncRun(source, syncType)
	if err := uc.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	docs, err := conn.ListDocuments(ctx)
	if err != nil {
		return uc.fail(ctx, run.ID, fmt.Errorf("list documents from %s: %w", source, err))
	}

	upstream := make(map[string]struct{}, len(docs))
	for _, payload := range docs {
		upstream[payload.DocID] = struct{}{}
	}

	if syncType != domain.SyncDeletionCheck {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(uc.workers)
		for _, payload := range docs {
			payload := payload
			g.Go(func() error {
				if _, err := uc.ingestor.Ingest(gctx, payload); err != nil {
					// Recorded as a failed event by the ingestor.
					return nil
				}
				// Counter increments are lossy under storage failure.
				_ = uc.runs.AddProgress(gctx, run.ID, 1, 0)
				return nil
			})
		}
		_ = g.Wait()
	}

	if syncType != domain.SyncIncremental {
		if err := uc.reconcileDeletions(ctx, run, upstream); err != nil {
			return uc.fail(ctx, run.ID, err)
		}
	}

	return uc.runs.Close(ctx, run.ID, domain.SyncCompleted, "")
}

// reconcileDeletions soft-deletes active ledger rows the source no longer
// lists. Vectors are left in place for downstream retraction.
func (uc *SyncUseCase) reconcileDeletions(ctx context.Context, run *domain.SyncRun, upstream map[string]struct{}) error {
	active, err := uc.ledger.ListActiveDocIDs(ctx, run.Source)
	if err != nil {
		return fmt.Errorf("list active documents: %w", err)
	}

	missing := make([]string, 0)
	for _, id := range active {
		if _, ok := upstream[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	deleted, err := uc.ledger.MarkDeleted(ctx, missing)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	for _, id := range deleted {
		ev := domain.NewEvent(id, domain.EventDeleted, "no longer present upstream",
			map[string]any{"sync_run_id": run.ID})
		if err := uc.events.Append(ctx, ev); err != nil {
			return fmt.Errorf("record deleted event: %w", err)
		}
	}
	_ = uc.runs.AddProgress(ctx, run.ID, 0, len(deleted))
	return nil
}

// fail closes the run as failed. The failure travels in the run row, not as
// a Sync error; callers inspect Status and ErrorMessage.
func (uc *SyncUseCase) fail(ctx context.Context, runID string, cause error) (*domain.SyncRun, error) {
	run, err := uc.runs.Close(ctx, runID, domain.SyncFailed, domain.TruncateErrorMessage(cause.Error()))
	if err != nil {
		return nil, fmt.Errorf("%w; close failed run: %w", cause, err)
	}
	return run, nil
}
