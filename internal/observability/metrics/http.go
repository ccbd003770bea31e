package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestDecisionsTotal *prometheus.CounterVec
	ingestDuration       *prometheus.HistogramVec
	ingestChunks         *prometheus.HistogramVec
	syncRunsTotal        *prometheus.CounterVec
	syncDocumentsDeleted *prometheus.CounterVec
	cleanupRowsTotal     *prometheus.CounterVec
	queuePublishTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ingest",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ingest",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Total admitted documents by decision.",
		},
		[]string{"service", "source", "decision"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ingest",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end ingest duration in seconds by decision.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "decision"},
	)
	ingestChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ingest",
			Subsystem: "pipeline",
			Name:      "chunks_processed",
			Help:      "Distribution of chunks processed per ingested document.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55},
		},
		[]string{"service"},
	)
	syncRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total finished sync runs by source and terminal status.",
		},
		[]string{"service", "source", "status"},
	)
	syncDocumentsDeleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "sync",
			Name:      "documents_deleted_total",
			Help:      "Total documents soft-deleted by deletion reconciliation.",
		},
		[]string{"service", "source"},
	)
	cleanupRowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "maintenance",
			Name:      "cleanup_rows_total",
			Help:      "Total audit rows removed by cleanup, by table.",
		},
		[]string{"service", "table"},
	)
	queuePublishTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingest",
			Subsystem: "queue",
			Name:      "publish_total",
			Help:      "Total batch payloads published to the job queue by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestDecisionsTotal,
		ingestDuration,
		ingestChunks,
		syncRunsTotal,
		syncDocumentsDeleted,
		cleanupRowsTotal,
		queuePublishTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		ingestDecisionsTotal: ingestDecisionsTotal,
		ingestDuration:       ingestDuration,
		ingestChunks:         ingestChunks,
		syncRunsTotal:        syncRunsTotal,
		syncDocumentsDeleted: syncDocumentsDeleted,
		cleanupRowsTotal:     cleanupRowsTotal,
		queuePublishTotal:    queuePublishTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/events"):
		return "/v1/documents/{doc_id}/events"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{doc_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIngestDecision(service, source, decision string, chunks int, duration time.Duration) {
	if decision == "" {
		decision = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	m.ingestDecisionsTotal.WithLabelValues(service, source, decision).Inc()
	m.ingestDuration.WithLabelValues(service, decision).Observe(duration.Seconds())
	m.ingestChunks.WithLabelValues(service).Observe(float64(chunks))
}

func (m *HTTPServerMetrics) RecordSyncRun(service, source, status string, documentsDeleted int) {
	if status == "" {
		status = "unknown"
	}
	m.syncRunsTotal.WithLabelValues(service, source, status).Inc()
	if documentsDeleted > 0 {
		m.syncDocumentsDeleted.WithLabelValues(service, source).Add(float64(documentsDeleted))
	}
}

func (m *HTTPServerMetrics) RecordCleanup(service string, eventsDeleted, runsDeleted int64) {
	if eventsDeleted > 0 {
		m.cleanupRowsTotal.WithLabelValues(service, "ingestion_events").Add(float64(eventsDeleted))
	}
	if runsDeleted > 0 {
		m.cleanupRowsTotal.WithLabelValues(service, "sync_runs").Add(float64(runsDeleted))
	}
}

func (m *HTTPServerMetrics) RecordQueuePublish(service string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queuePublishTotal.WithLabelValues(service, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
