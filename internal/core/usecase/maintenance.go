package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

const (
	DefaultEventRetention = 30 * 24 * time.Hour
	DefaultRunRetention   = 7 * 24 * time.Hour
)

// MaintenanceUseCase covers the idempotent administrative routines: pruning
// old audit rows and reporting corpus shape. Document rows are never pruned;
// the ledger is the system of record.
type MaintenanceUseCase struct {
	ledger ports.DocumentLedger
	events ports.EventLog
	runs   ports.SyncRunStore
	now    func() time.Time
}

func NewMaintenanceUseCase(ledger ports.DocumentLedger, events ports.EventLog, runs ports.SyncRunStore) *MaintenanceUseCase {
	return &MaintenanceUseCase{
		ledger: ledger,
		events: events,
		runs:   runs,
		now:    time.Now,
	}
}

func (uc *MaintenanceUseCase) Cleanup(ctx context.Context, eventRetention, runRetention time.Duration) (*ports.CleanupReport, error) {
	if eventRetention <= 0 {
		eventRetention = DefaultEventRetention
	}
	if runRetention <= 0 {
		runRetention = DefaultRunRetention
	}

	now := uc.now().UTC()
	eventsDeleted, err := uc.events.DeleteBefore(ctx, now.Add(-eventRetention))
	if err != nil {
		return nil, fmt.Errorf("prune ingestion events: %w", err)
	}
	runsDeleted, err := uc.runs.DeleteCompletedBefore(ctx, now.Add(-runRetention))
	if err != nil {
		return nil, fmt.Errorf("prune sync runs: %w", err)
	}

	return &ports.CleanupReport{
		EventsDeleted: eventsDeleted,
		RunsDeleted:   runsDeleted,
	}, nil
}

func (uc *MaintenanceUseCase) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	return uc.ledger.Stats(ctx)
}
