package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cache"
	"fintrack/internal/categorize"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
	"fintrack/internal/taxonomy"
)

func main() {
	// Load .env file for local development (ignore missing file)
	if err := cli.LoadEnvFile(); err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load .env file", log.FieldError, err)
		os.Exit(1)
	}

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	logger.Info("Starting fintrack",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsBackend)

	ctx, cancel := cli.ShutdownContext(context.Background(), logger)
	defer cancel()

	factory, bcfg, backendRes := cli.InitBackend(ctx, logger, cfg)
	if backendRes.Cleanup != nil {
		defer func() {
			if err := backendRes.Cleanup(); err != nil {
				logger.Error("Failed to close store", log.FieldError, err)
			}
		}()
	}
	store := backendRes.Store

	eventsRes, err := factory.CreateEvents(ctx, bcfg, false)
	if err != nil {
		logger.Error("Failed to initialize events backend", log.FieldError, err, "events", bcfg.Events)
		os.Exit(1)
	}
	if eventsRes.Cleanup != nil {
		defer eventsRes.Cleanup()
	}

	engine := categorize.NewEngine(nil)
	taxSvc := services.NewTaxonomyService(engine, store, eventsRes.Publisher, services.TaxonomyOptions{
		File:    cfg.TaxonomyFile,
		Builtin: cfg.TaxonomyDefault,
	})
	n, err := taxSvc.Reload(ctx)
	if err != nil {
		logger.Error("Failed to load categorization rules", log.FieldError, err, "file", cfg.TaxonomyFile)
		os.Exit(1)
	}
	logger.Info("Categorization rules loaded", "rules", n, "source", taxSvc.Source())

	txSvc := services.NewTransactionService(store, engine, eventsRes.Publisher, cfg.RecategorizeWorkers)

	caches := cache.NewManager()
	caches.Register(txSvc.ListCache())
	caches.StartCleanup(ctx, time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: ratelimit.Config{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
	}, apphttp.Services{
		Transactions: txSvc,
		Taxonomy:     taxSvc,
		Goals:        services.NewGoalService(store),
		Users:        services.NewUserService(store),
		Store:        store,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if watch := startWatcher(cfg, taxSvc, logger); watch != nil {
		g.Go(func() error { return watch.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// startWatcher returns nil when no taxonomy file is configured or watching
// is disabled. A watcher that cannot start is logged, not fatal.
func startWatcher(cfg *config.Config, tax *services.TaxonomyService, logger *log.Logger) *taxonomy.Watcher {
	if cfg.TaxonomyFile == "" || !cfg.TaxonomyWatch {
		return nil
	}
	w, err := taxonomy.NewWatcher(cfg.TaxonomyFile, tax.ReloadFunc(),
		taxonomy.WithLogger(logger.WithComponent(log.ComponentTaxonomy).Logger))
	if err != nil {
		logger.Error("Taxonomy file watch disabled", log.FieldError, err, "file", cfg.TaxonomyFile)
		return nil
	}
	logger.Info("Watching taxonomy file", "file", cfg.TaxonomyFile)
	return w
}
