package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/macro-ingest/internal/adapter/fred"
	httpadapter "github.com/couchcryptid/macro-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/macro-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/macro-ingest/internal/config"
	"github.com/couchcryptid/macro-ingest/internal/ingest"
	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/couchcryptid/macro-ingest/internal/store"
	"github.com/jonboulle/clockwork"
)

func main() {
	once := flag.Bool("once", false, "run a single ingest pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if cfg.FredAPIKey == "" {
		logger.Error("FRED_API_KEY is not set")
		os.Exit(1)
	}
	if len(cfg.TrackedSeries) == 0 {
		logger.Warn("no tracked series configured; set TRACKED_SERIES")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := fred.NewClient(fred.Config{
		APIKey:      cfg.FredAPIKey,
		BaseURL:     cfg.FredBaseURL,
		Timeout:     cfg.FredTimeout,
		MaxAttempts: cfg.FredRetryCount,
	}, metrics, logger)
	source := fred.NewCachedSource(client, cfg.MetadataCacheSize, cfg.MetadataCacheTTL, clockwork.NewRealClock(), metrics)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "dialect", db.Dialect())

	sinks := []ingest.Sink{db}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	ingester := ingest.New(source, sinks, ingest.Options{
		Series:      cfg.TrackedSeries,
		Interval:    cfg.IngestInterval,
		Concurrency: cfg.IngestConcurrency,
	}, logger, metrics)

	if *once {
		_, err := ingester.RunOnce(ctx)
		closeSinks(logger, db, writer)
		if err != nil {
			logger.Error("ingest pass failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ingester, db, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingest loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ingester.Run(ctx); err != nil {
			logger.Error("ingester error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("ingester did not stop before shutdown timeout")
	}
	closeSinks(logger, db, writer)

	logger.Info("shutdown complete")
}

func closeSinks(logger *slog.Logger, db *store.Store, writer *kafkaadapter.Writer) {
	if err := db.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}
	if writer == nil {
		return
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
