package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
)

type commitCall struct {
	doc *domain.Document
	ev  domain.Event
}

type ledgerFake struct {
	docs       map[string]*domain.Document
	hashOwner  map[string]string
	commits    []commitCall
	commitErrs []error
	activeIDs  []string
	markedIn   []string
	markedOut  []string
	stats      *domain.CorpusStats
	getErr     error
	listErr    error
	pingErr    error
}

func (f *ledgerFake) GetByDocID(_ context.Context, docID string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[docID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(docID))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *ledgerFake) FindDocIDByContentHash(_ context.Context, contentHash string) (string, error) {
	if contentHash == "" {
		return "", nil
	}
	return f.hashOwner[contentHash], nil
}

func (f *ledgerFake) Commit(_ context.Context, doc *domain.Document, ev domain.Event) error {
	if len(f.commitErrs) > 0 {
		err := f.commitErrs[0]
		f.commitErrs = f.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	f.commits = append(f.commits, commitCall{doc: doc, ev: ev})
	return nil
}

func (f *ledgerFake) MarkDeleted(_ context.Context, docIDs []string) ([]string, error) {
	f.markedIn = append(f.markedIn, docIDs...)
	if f.markedOut != nil {
		return f.markedOut, nil
	}
	return docIDs, nil
}

func (f *ledgerFake) ListActiveDocIDs(context.Context, string) ([]string, error) {
	return f.activeIDs, f.listErr
}

func (f *ledgerFake) Stats(context.Context) (*domain.CorpusStats, error) { return f.stats, nil }

func (f *ledgerFake) Ping(context.Context) error { return f.pingErr }

type eventLogFake struct {
	mu        sync.Mutex
	events    []domain.Event
	appendErr error
	cutoffs   []time.Time
	deleted   int64
}

func (f *eventLogFake) Append(_ context.Context, ev domain.Event) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *eventLogFake) ListByDocID(context.Context, string, int) ([]domain.Event, error) {
	return f.events, nil
}

func (f *eventLogFake) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, nil
}

func (f *eventLogFake) types() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type progressCall struct {
	processed int
	deleted   int
}

type runStoreFake struct {
	mu            sync.Mutex
	created       *domain.SyncRun
	createErr     error
	progress      []progressCall
	closedStatus  domain.SyncStatus
	closedMessage string
	runCutoffs    []time.Time
	runsDeleted   int64
}

func (f *runStoreFake) Create(_ context.Context, run *domain.SyncRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = run
	return nil
}

func (f *runStoreFake) AddProgress(_ context.Context, _ string, processedDelta, deletedDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progressCall{processed: processedDelta, deleted: deletedDelta})
	return nil
}

func (f *runStoreFake) Close(_ context.Context, runID string, status domain.SyncStatus, errorMessage string) (*domain.SyncRun, error) {
	f.closedStatus = status
	f.closedMessage = errorMessage
	now := time.Now().UTC()
	run := *f.created
	run.Status = status
	run.ErrorMessage = errorMessage
	run.CompletedAt = &now
	for _, p := range f.progress {
		run.DocumentsProcessed += p.processed
		run.DocumentsDeleted += p.deleted
	}
	return &run, nil
}

func (f *runStoreFake) GetByID(context.Context, string) (*domain.SyncRun, error) {
	return f.created, nil
}

func (f *runStoreFake) ListRecent(context.Context, string, int) ([]domain.SyncRun, error) {
	return nil, nil
}

func (f *runStoreFake) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.runCutoffs = append(f.runCutoffs, cutoff)
	return f.runsDeleted, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(text string) []string {
	if text == "" {
		return nil
	}
	return f.chunks
}

type embedderFake struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

type vectorFake struct {
	upserts    int
	lastChunks []string
	retracted  []string
	upsertErr  error
	healthErr  error
}

func (f *vectorFake) UpsertChunks(_ context.Context, _ *domain.Document, chunks []string, _ [][]float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.lastChunks = chunks
	return nil
}

func (f *vectorFake) DeleteByDocID(_ context.Context, docID string) error {
	f.retracted = append(f.retracted, docID)
	return nil
}

func (f *vectorFake) Health(context.Context) error { return f.healthErr }

type connectorFake struct {
	source  string
	docs    []domain.DocumentPayload
	listErr error
	getErr  error
}

func (f *connectorFake) Source() string { return f.source }

func (f *connectorFake) ListDocuments(context.Context) ([]domain.DocumentPayload, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.docs, nil
}

func (f *connectorFake) GetDocument(_ context.Context, docID string) (*domain.DocumentPayload, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, payload := range f.docs {
		if payload.DocID == docID {
			copyPayload := payload
			return &copyPayload, nil
		}
	}
	return nil, errors.New("not found upstream")
}

type ingestorFake struct {
	mu       sync.Mutex
	ingested []string
	failFor  map[string]error
}

func (f *ingestorFake) Ingest(_ context.Context, payload domain.DocumentPayload) (*ports.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[payload.DocID]; err != nil {
		return nil, err
	}
	f.ingested = append(f.ingested, payload.DocID)
	return &ports.IngestResult{DocID: payload.DocID, Decision: domain.DecisionNew}, nil
}
