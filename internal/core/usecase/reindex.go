package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

// ReindexUseCase refetches a known document from its source and pushes it
// through forced ingestion. The ledger does not retain document text, so a
// rebuild always goes back to the connector.
type ReindexUseCase struct {
	ledger     ports.DocumentLedger
	connectors map[string]ports.SourceConnector
	ingestor   *IngestUseCase
}

func NewReindexUseCase(
	ledger ports.DocumentLedger,
	connectors map[string]ports.SourceConnector,
	ingestor *IngestUseCase,
) *ReindexUseCase {
	return &ReindexUseCase{
		ledger:     ledger,
		connectors: connectors,
		ingestor:   ingestor,
	}
}

func (uc *ReindexUseCase) Reindex(ctx context.Context, docID string) (*ports.IngestResult, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, domain.WrapError(domain.ErrValidation, "reindex", fmt.Errorf("doc_id is required"))
	}

	doc, err := uc.ledger.GetByDocID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "reindex", fmt.Errorf("doc_id=%s is deleted", docID))
	}

	conn, ok := uc.connectors[doc.Source]
	if !ok {
		return nil, domain.WrapError(domain.ErrValidation, "reindex", fmt.Errorf("no connector for source %q", doc.Source))
	}

	payload, err := conn.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("refetch %s from %s: %w", docID, doc.Source, err)
	}

	return uc.ingestor.ForceIngest(ctx, *payload)
}
