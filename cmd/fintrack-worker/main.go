package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore missing file)
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load .env file", log.FieldError, err)
		os.Exit(1)
	}

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting fintrack-worker", "backend", cfg.DataBackend, "events", cfg.EventsBackend)

	ctx, cancel := cli.ShutdownContext(context.Background(), logger)
	defer cancel()

	factory, bcfg, backendRes := cli.InitBackend(ctx, logger, cfg)
	if backendRes.Cleanup != nil {
		defer backendRes.Cleanup()
	}

	if bcfg.Events == backend.NoEvents {
		logger.Error("The worker needs an events backend", "events", bcfg.Events)
		os.Exit(1)
	}

	eventsRes, err := factory.CreateEvents(ctx, bcfg, true)
	if err != nil {
		logger.Error("Failed to initialize events backend", log.FieldError, err, "events", bcfg.Events)
		os.Exit(1)
	}
	if eventsRes.Cleanup != nil {
		defer eventsRes.Cleanup()
	}

	exporter, err := factory.CreateExporter(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err)
		os.Exit(1)
	}

	w := worker.NewExportWorker(backendRes.Store, exporter, worker.Config{
		BatchSize: cfg.ExportBatchSize,
		Interval:  cfg.ExportInterval,
	})

	// Recover anything published while the worker was down. Not fatal.
	if err := w.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup export check", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eventsRes.Consumer.Consume(gctx, w.Handle) })
	g.Go(func() error { return w.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
