package usecase

import (
	"context"

	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

// HealthUseCase reports storage reachability. It never consults pipeline
// state; a healthy report means the ledger and vector store answer.
type HealthUseCase struct {
	ledger  ports.DocumentLedger
	vectors ports.VectorStore
}

func NewHealthUseCase(ledger ports.DocumentLedger, vectors ports.VectorStore) *HealthUseCase {
	return &HealthUseCase{ledger: ledger, vectors: vectors}
}

func (uc *HealthUseCase) Check(ctx context.Context) ports.HealthReport {
	report := ports.HealthReport{
		Status:   "healthy",
		Postgres: "connected",
		Qdrant:   "connected",
	}
	if err := uc.ledger.Ping(ctx); err != nil {
		report.Postgres = "disconnected"
	}
	if err := uc.vectors.Health(ctx); err != nil {
		report.Qdrant = "disconnected"
	}
	if report.Postgres != "connected" || report.Qdrant != "connected" {
		report.Status = "unhealthy"
	}
	return report
}
