package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

// IngestUseCase runs one document through the admit/commit cycle: decide
// whether the payload is worth processing, push changed content through
// chunking, embedding and the vector store, and commit the ledger row with
// its terminal event in one transaction.
type IngestUseCase struct {
	ledger   ports.DocumentLedger
	events   ports.EventLog
	chunker  ports.Chunker
	embedder ports.Embedder
	vectors  ports.VectorStore
}

func NewIngestUseCase(
	ledger ports.DocumentLedger,
	events ports.EventLog,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
) *IngestUseCase {
	return &IngestUseCase{
		ledger:   ledger,
		events:   events,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
	}
}

func (uc *IngestUseCase) Ingest(ctx context.Context, payload domain.DocumentPayload) (*ports.IngestResult, error) {
	return uc.run(ctx, payload, false)
}

// ForceIngest processes the payload even when its content hash matches the
// stored row. Reindexing uses it to rebuild vectors from a fresh fetch.
func (uc *IngestUseCase) ForceIngest(ctx context.Context, payload domain.DocumentPayload) (*ports.IngestResult, error) {
	return uc.run(ctx, payload, true)
}

func (uc *IngestUseCase) run(ctx context.Context, payload domain.DocumentPayload, force bool) (*ports.IngestResult, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	normalized := domain.NormalizeText(payload.Text)
	contentHash := domain.Fingerprint(normalized)

	received := domain.NewEvent(payload.DocID, domain.EventReceived, "received from "+payload.Source, nil)
	if err := uc.events.Append(ctx, received); err != nil {
		return nil, fmt.Errorf("record received event: %w", err)
	}

	admission, err := uc.admit(ctx, payload.DocID, contentHash)
	if err != nil {
		return nil, err
	}

	decision := admission.Decision
	if force && decision == domain.DecisionUnchanged {
		decision = domain.DecisionChanged
	}

	switch decision {
	case domain.DecisionUnchanged:
		// The stored row already states the current fact; no durable write.
		return &ports.IngestResult{DocID: payload.DocID, Decision: decision}, nil
	case domain.DecisionDuplicateContent:
		return uc.commitDuplicate(ctx, payload, admission.DuplicateOf)
	}

	admitted := domain.NewEvent(payload.DocID, domain.EventAdmitted, "admitted as "+string(decision),
		map[string]any{"decision": string(decision)})
	if err := uc.events.Append(ctx, admitted); err != nil {
		return nil, fmt.Errorf("record admitted event: %w", err)
	}

	result, err := uc.process(ctx, payload, normalized, contentHash, decision)
	if err != nil {
		uc.recordFailure(ctx, payload.DocID, err)
		return nil, err
	}
	return result, nil
}

func (uc *IngestUseCase) admit(ctx context.Context, docID, contentHash string) (domain.Admission, error) {
	existing, err := uc.ledger.GetByDocID(ctx, docID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.Admission{}, fmt.Errorf("load ledger row: %w", err)
		}
		existing = nil
	}

	var duplicateOf string
	if existing == nil && contentHash != "" {
		duplicateOf, err = uc.ledger.FindDocIDByContentHash(ctx, contentHash)
		if err != nil {
			return domain.Admission{}, fmt.Errorf("probe content hash: %w", err)
		}
	}
	return domain.Decide(existing, duplicateOf, contentHash), nil
}

func (uc *IngestUseCase) process(ctx context.Context, payload domain.DocumentPayload, normalized, contentHash string, decision domain.Decision) (*ports.IngestResult, error) {
	chunks := uc.chunker.Split(normalized)

	chunked := domain.NewEvent(payload.DocID, domain.EventChunked,
		fmt.Sprintf("split into %d chunks", len(chunks)), map[string]any{"chunks": len(chunks)})
	if err := uc.events.Append(ctx, chunked); err != nil {
		return nil, fmt.Errorf("record chunked event: %w", err)
	}

	doc := documentFromPayload(payload, contentHash, len(chunks))

	if len(chunks) > 0 {
		vectors, err := uc.embedder.Embed(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}

		embedded := domain.NewEvent(payload.DocID, domain.EventEmbedded,
			fmt.Sprintf("embedded %d chunks", len(chunks)), nil)
		if err := uc.events.Append(ctx, embedded); err != nil {
			return nil, fmt.Errorf("record embedded event: %w", err)
		}

		if err := uc.vectors.UpsertChunks(ctx, doc, chunks, vectors); err != nil {
			return nil, fmt.Errorf("upsert chunk vectors: %w", err)
		}
	}

	upserted := domain.NewEvent(payload.DocID, domain.EventUpserted,
		fmt.Sprintf("%d chunks live", len(chunks)),
		map[string]any{"chunks": len(chunks), "decision": string(decision)})
	if err := uc.ledger.Commit(ctx, doc, upserted); err != nil {
		if domain.IsKind(err, domain.ErrDuplicateContent) {
			// Lost the content-hash race to a concurrent identical document.
			// Retract the points written above and fall back to the alias row.
			_ = uc.vectors.DeleteByDocID(ctx, payload.DocID)
			holder, lookupErr := uc.ledger.FindDocIDByContentHash(ctx, contentHash)
			if lookupErr != nil {
				holder = ""
			}
			return uc.commitDuplicate(ctx, payload, holder)
		}
		return nil, fmt.Errorf("commit ledger row: %w", err)
	}

	return &ports.IngestResult{
		DocID:           payload.DocID,
		Decision:        decision,
		ChunksProcessed: len(chunks),
	}, nil
}

// commitDuplicate records the document as an alias of already-indexed
// content. The alias row carries no hash (the canonical row holds it) and
// no chunks.
func (uc *IngestUseCase) commitDuplicate(ctx context.Context, payload domain.DocumentPayload, duplicateOf string) (*ports.IngestResult, error) {
	message := "identical content already indexed"
	var meta map[string]any
	if duplicateOf != "" {
		message += " under " + duplicateOf
		meta = map[string]any{"duplicate_of": duplicateOf}
	}

	doc := documentFromPayload(payload, "", 0)
	ev := domain.NewEvent(payload.DocID, domain.EventSkippedDuplicate, message, meta)
	if err := uc.ledger.Commit(ctx, doc, ev); err != nil {
		return nil, fmt.Errorf("commit duplicate alias: %w", err)
	}

	return &ports.IngestResult{DocID: payload.DocID, Decision: domain.DecisionDuplicateContent}, nil
}

func (uc *IngestUseCase) recordFailure(ctx context.Context, docID string, cause error) {
	ev := domain.NewEvent(docID, domain.EventFailed, domain.TruncateErrorMessage(cause.Error()), nil)
	_ = uc.events.Append(ctx, ev)
}

func validatePayload(payload domain.DocumentPayload) error {
	if strings.TrimSpace(payload.DocID) == "" {
		return domain.WrapError(domain.ErrValidation, "ingest", fmt.Errorf("doc_id is required"))
	}
	if strings.TrimSpace(payload.Source) == "" {
		return domain.WrapError(domain.ErrValidation, "ingest", fmt.Errorf("source is required"))
	}
	return nil
}

func documentFromPayload(payload domain.DocumentPayload, contentHash string, chunkCount int) *domain.Document {
	return &domain.Document{
		DocID:       payload.DocID,
		Source:      payload.Source,
		Title:       payload.Title,
		URI:         payload.URI,
		Author:      payload.Author,
		CreatedAt:   payload.CreatedAt,
		UpdatedAt:   payload.UpdatedAt,
		ProcessedAt: time.Now().UTC(),
		ContentHash: contentHash,
		ChunkCount:  chunkCount,
	}
}
