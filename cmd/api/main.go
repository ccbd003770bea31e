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

	httpadapter "github.com/blacksynapse/ingest-worker/internal/adapters/http"
	"github.com/blacksynapse/ingest-worker/internal/bootstrap"
	"github.com/blacksynapse/ingest-worker/internal/config"
	"github.com/blacksynapse/ingest-worker/internal/observability/logging"
	"github.com/blacksynapse/ingest-worker/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Deps{
		Ingestor:    app.IngestUC,
		Reindexer:   app.ReindexUC,
		Syncer:      app.SyncUC,
		Maintenance: app.Maintenance,
		Health:      app.Health,
		Ledger:      app.Ledger,
		Events:      app.Events,
		Runs:        app.Runs,
		Queue:       app.Queue,
		Metrics:     metrics.NewHTTPServerMetrics("api"),

		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxConcurrent:  cfg.APIMaxConcurrent,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}
