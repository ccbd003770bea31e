package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/bootstrap"
	"github.com/blacksynapse/ingest-worker/internal/config"
	"github.com/blacksynapse/ingest-worker/internal/core/domain"
	"github.com/blacksynapse/ingest-worker/internal/observability/logging"
	"github.com/blacksynapse/ingest-worker/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go runCleanupLoop(ctx, app, cfg)

	app.Queue.SetQueueLagObserver(func(lag time.Duration) {
		workerMetrics.ObserveQueueLag("worker", lag)
	})

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIngestJobs(ctx, func(handlerCtx context.Context, payload domain.DocumentPayload) error {
		workerMetrics.StartJob()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		_, ingestErr := app.IngestUC.Ingest(processCtx, payload)
		workerMetrics.FinishJob("worker", time.Since(start), ingestErr)
		return ingestErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// runCleanupLoop prunes old events and completed sync runs on the configured
// interval until the context is cancelled.
func runCleanupLoop(ctx context.Context, app *bootstrap.App, cfg config.Config) {
	interval := time.Duration(cfg.CleanupIntervalHours) * time.Hour
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, time.Minute)
			report, err := app.Maintenance.Cleanup(
				cleanupCtx,
				time.Duration(cfg.EventRetentionDays)*24*time.Hour,
				time.Duration(cfg.RunRetentionDays)*24*time.Hour,
			)
			cancel()
			if err != nil {
				slog.Error("scheduled cleanup failed", "error", err)
				continue
			}
			slog.Info("scheduled cleanup finished",
				"events_deleted", report.EventsDeleted,
				"runs_deleted", report.RunsDeleted)
		}
	}
}
