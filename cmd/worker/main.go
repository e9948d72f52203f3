package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akozlov/graphrag/internal/bootstrap"
	"github.com/akozlov/graphrag/internal/config"
	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/observability/logging"
	"github.com/akozlov/graphrag/internal/observability/metrics"
)

const processTimeout = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("worker", cfg.LogLevel)

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}

	m := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	handler := func(msgCtx context.Context, ev domain.IngestEvent) error {
		procCtx, cancel := context.WithTimeout(msgCtx, processTimeout)
		defer cancel()

		if !ev.IngestedAt.IsZero() {
			m.ObserveQueueLag("worker", time.Since(ev.IngestedAt))
		}
		m.StartDocument()
		start := time.Now()
		logger.Info("processing document", "document_id", ev.DocumentID)

		err := app.ProcessUC.ProcessByID(procCtx, ev.DocumentID)
		m.FinishDocument("worker", time.Since(start), err)
		if err != nil {
			logger.Error("process document", "document_id", ev.DocumentID, "error", err)
			return err
		}
		logger.Info("document processed", "document_id", ev.DocumentID, "duration", time.Since(start))
		return nil
	}

	logger.Info("worker subscribing", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeDocumentIngested(ctx, handler); err != nil {
		logger.Error("subscription terminated", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}
	app.Close(shutdownCtx)
	logger.Info("worker stopped")
}
