package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/core/ports"
	"github.com/blacksynapse/ingest-worker/internal/observability/metrics"
)

const serviceName = "api"

// Deps carries everything the api surface needs. Metrics may be nil in
// tests; every other field is required.
type Deps struct {
	Ingestor    ports.DocumentIngestor
	Reindexer   ports.DocumentReindexer
	Syncer      ports.SourceSyncer
	Maintenance ports.MaintenanceService
	Health      ports.HealthChecker
	Ledger      ports.DocumentLedger
	Events      ports.EventLog
	Runs        ports.SyncRunStore
	Queue       ports.JobQueue
	Metrics     *metrics.HTTPServerMetrics

	RateLimitRPS   int
	RateLimitBurst int
	MaxConcurrent  int
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/health", rt.health)
	mux.HandleFunc("/v1/ingest", rt.ingest)
	mux.HandleFunc("/v1/ingest/batch", rt.ingestBatch)
	mux.HandleFunc("/v1/reindex", rt.reindex)
	mux.HandleFunc("/v1/sync", rt.sync)
	mux.HandleFunc("/v1/syncs", rt.listSyncs)
	mux.HandleFunc("/v1/syncs/", rt.getSync)
	mux.HandleFunc("/v1/stats", rt.stats)
	mux.HandleFunc("/v1/documents/", rt.documentByID)
	mux.HandleFunc("/v1/maintenance/cleanup", rt.cleanup)

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.deps.MaxConcurrent, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.deps.RateLimitRPS, rt.deps.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	report := rt.deps.Health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload domain.DocumentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.deps.Ingestor.Ingest(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordIngestDecision(serviceName, payload.Source, string(result.Decision), result.ChunksProcessed, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) ingestBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Documents []domain.DocumentPayload `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Documents) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documents is required"})
		return
	}

	queued := 0
	for _, payload := range req.Documents {
		err := rt.deps.Queue.PublishIngestJob(r.Context(), payload)
		if rt.deps.Metrics != nil {
			rt.deps.Metrics.RecordQueuePublish(serviceName, err)
		}
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{
				"error":  err.Error(),
				"queued": queued,
			})
			return
		}
		queued++
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (rt *Router) reindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		DocID string `json:"doc_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.deps.Reindexer.Reindex(r.Context(), req.DocID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Source   string `json:"source"`
		SyncType string `json:"sync_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	syncType, err := domain.ParseSyncType(req.SyncType)
	if err != nil {
		writeError(w, err)
		return
	}

	run, err := rt.deps.Syncer.Sync(r.Context(), req.Source, syncType)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordSyncRun(serviceName, run.Source, string(run.Status), run.DocumentsDeleted)
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) listSyncs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := rt.deps.Runs.ListRecent(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (rt *Router) getSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/syncs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sync run id is required"})
		return
	}

	run, err := rt.deps.Runs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.deps.Maintenance.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) documentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/events"); ok {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := rt.deps.Events.ListByDocID(r.Context(), id, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"doc_id": id, "events": events})
		return
	}

	doc, err := rt.deps.Ledger.GetByDocID(r.Context(), rest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		EventRetentionDays int `json:"event_retention_days"`
		RunRetentionDays   int `json:"run_retention_days"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	report, err := rt.deps.Maintenance.Cleanup(
		r.Context(),
		time.Duration(req.EventRetentionDays)*24*time.Hour,
		time.Duration(req.RunRetentionDays)*24*time.Hour,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordCleanup(serviceName, report.EventsDeleted, report.RunsDeleted)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
