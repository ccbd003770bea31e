package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

func hashOf(text string) string {
	return domain.Fingerprint(domain.NormalizeText(text))
}

func newIngestFixture(ledger *ledgerFake, events *eventLogFake) (*IngestUseCase, *embedderFake, *vectorFake) {
	embedder := &embedderFake{vectors: [][]float32{{0.1}, {0.2}}}
	vectors := &vectorFake{}
	uc := NewIngestUseCase(ledger, events, &chunkerFake{chunks: []string{"a", "b"}}, embedder, vectors)
	return uc, embedder, vectors
}

func TestIngestNewDocument(t *testing.T) {
	ledger := &ledgerFake{docs: map[string]*domain.Document{}, hashOwner: map[string]string{}}
	events := &eventLogFake{}
	uc, _, vectors := newIngestFixture(ledger, events)

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "hello world",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionNew || result.ChunksProcessed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(ledger.commits) != 1 {
		t.Fatalf("expected one commit, got %d", len(ledger.commits))
	}
	committed := ledger.commits[0]
	if committed.doc.ContentHash != hashOf("hello world") || committed.doc.ChunkCount != 2 {
		t.Fatalf("unexpected committed row: %+v", committed.doc)
	}
	if committed.ev.Type != domain.EventUpserted {
		t.Fatalf("expected upserted event in commit, got %s", committed.ev.Type)
	}
	if vectors.upserts != 1 || len(vectors.lastChunks) != 2 {
		t.Fatalf("expected vectors upserted once with 2 chunks")
	}

	want := []domain.EventType{domain.EventReceived, domain.EventAdmitted, domain.EventChunked, domain.EventEmbedded}
	got := events.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestIngestUnchangedWritesNothing(t *testing.T) {
	ledger := &ledgerFake{
		docs: map[string]*domain.Document{
			"n8n-123": {DocID: "n8n-123", Source: "notion", ContentHash: hashOf("hello world"), ChunkCount: 2},
		},
	}
	events := &eventLogFake{}
	uc, embedder, vectors := newIngestFixture(ledger, events)

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "hello world",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionUnchanged || result.ChunksProcessed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(ledger.commits) != 0 || embedder.calls != 0 || vectors.upserts != 0 {
		t.Fatalf("unchanged document must not write")
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventReceived {
		t.Fatalf("expected only the received event, got %v", got)
	}
}

func TestIngestNormalizationMasksFormattingChanges(t *testing.T) {
	ledger := &ledgerFake{
		docs: map[string]*domain.Document{
			"n8n-123": {DocID: "n8n-123", Source: "notion", ContentHash: hashOf("hello world")},
		},
	}
	uc, _, _ := newIngestFixture(ledger, &eventLogFake{})

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "  hello\n\n   world \t",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionUnchanged {
		t.Fatalf("whitespace-only change must be unchanged, got %s", result.Decision)
	}
}

func TestIngestChangedContentReprocesses(t *testing.T) {
	ledger := &ledgerFake{
		docs: map[string]*domain.Document{
			"n8n-123": {DocID: "n8n-123", Source: "notion", ContentHash: hashOf("old body")},
		},
	}
	uc, _, _ := newIngestFixture(ledger, &eventLogFake{})

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "new body",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionChanged {
		t.Fatalf("expected changed, got %s", result.Decision)
	}
	if len(ledger.commits) != 1 || ledger.commits[0].doc.ContentHash != hashOf("new body") {
		t.Fatalf("expected commit with new hash")
	}
}

func TestIngestDuplicateContentCommitsAliasRow(t *testing.T) {
	ledger := &ledgerFake{
		docs:      map[string]*domain.Document{},
		hashOwner: map[string]string{hashOf("same body"): "wiki-1"},
	}
	events := &eventLogFake{}
	uc, embedder, _ := newIngestFixture(ledger, events)

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "same body",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionDuplicateContent || result.ChunksProcessed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if embedder.calls != 0 {
		t.Fatalf("duplicate content must not be embedded")
	}

	if len(ledger.commits) != 1 {
		t.Fatalf("expected alias commit")
	}
	alias := ledger.commits[0]
	if alias.doc.ContentHash != "" || alias.doc.ChunkCount != 0 {
		t.Fatalf("alias row must carry no hash and no chunks: %+v", alias.doc)
	}
	if alias.ev.Type != domain.EventSkippedDuplicate {
		t.Fatalf("expected skipped_duplicate event, got %s", alias.ev.Type)
	}
	if alias.ev.Metadata["duplicate_of"] != "wiki-1" {
		t.Fatalf("expected duplicate_of=wiki-1, got %+v", alias.ev.Metadata)
	}
}

func TestIngestDuplicateRaceOnCommitFallsBack(t *testing.T) {
	ledger := &ledgerFake{
		docs:       map[string]*domain.Document{},
		hashOwner:  map[string]string{},
		commitErrs: []error{domain.WrapError(domain.ErrDuplicateContent, "commit", errors.New("23505"))},
	}
	uc, _, vectors := newIngestFixture(ledger, &eventLogFake{})

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "raced body",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionDuplicateContent {
		t.Fatalf("expected duplicate_content after race, got %s", result.Decision)
	}
	if len(vectors.retracted) != 1 || vectors.retracted[0] != "n8n-123" {
		t.Fatalf("expected raced points retracted, got %v", vectors.retracted)
	}
	if len(ledger.commits) != 1 || ledger.commits[0].doc.ContentHash != "" {
		t.Fatalf("expected hashless alias commit after race")
	}
}

func TestIngestEmptyTextIsAlwaysChanged(t *testing.T) {
	ledger := &ledgerFake{
		docs: map[string]*domain.Document{
			"n8n-123": {DocID: "n8n-123", Source: "notion", ContentHash: ""},
		},
	}
	events := &eventLogFake{}
	uc, embedder, vectors := newIngestFixture(ledger, events)

	result, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "   \t\n ",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Decision != domain.DecisionChanged || result.ChunksProcessed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if embedder.calls != 0 || vectors.upserts != 0 {
		t.Fatalf("zero chunks must skip embed and upsert")
	}
	if len(ledger.commits) != 1 || ledger.commits[0].doc.ContentHash != "" {
		t.Fatalf("expected commit with empty hash")
	}
}

func TestForceIngestOverridesUnchanged(t *testing.T) {
	ledger := &ledgerFake{
		docs: map[string]*domain.Document{
			"n8n-123": {DocID: "n8n-123", Source: "notion", ContentHash: hashOf("hello world")},
		},
	}
	uc, _, vectors := newIngestFixture(ledger, &eventLogFake{})

	result, err := uc.ForceIngest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "hello world",
	})
	if err != nil {
		t.Fatalf("ForceIngest() error = %v", err)
	}
	if result.Decision != domain.DecisionChanged || result.ChunksProcessed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if vectors.upserts != 1 {
		t.Fatalf("forced ingest must rebuild vectors")
	}
}

func TestIngestEmbedFailureRecordsFailedEvent(t *testing.T) {
	ledger := &ledgerFake{docs: map[string]*domain.Document{}, hashOwner: map[string]string{}}
	events := &eventLogFake{}
	embedder := &embedderFake{err: errors.New("embedding backend down")}
	uc := NewIngestUseCase(ledger, events, &chunkerFake{chunks: []string{"a"}}, embedder, &vectorFake{})

	_, err := uc.Ingest(context.Background(), domain.DocumentPayload{
		DocID: "n8n-123", Source: "notion", Text: "hello world",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(ledger.commits) != 0 {
		t.Fatalf("failed ingest must not commit")
	}
	got := events.types()
	if len(got) == 0 || got[len(got)-1] != domain.EventFailed {
		t.Fatalf("expected trailing failed event, got %v", got)
	}
}

func TestIngestRejectsMissingIdentity(t *testing.T) {
	uc, _, _ := newIngestFixture(&ledgerFake{}, &eventLogFake{})

	for _, payload := range []domain.DocumentPayload{
		{Source: "notion", Text: "body"},
		{DocID: "   ", Source: "notion", Text: "body"},
		{DocID: "n8n-123", Text: "body"},
	} {
		if _, err := uc.Ingest(context.Background(), payload); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", payload, err)
		}
	}
}
