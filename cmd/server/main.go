package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang-sql/civil"
	"github.com/joho/godotenv"

	"github.com/atlasquant/marketdata/internal/config"
	"github.com/atlasquant/marketdata/internal/ingest"
	"github.com/atlasquant/marketdata/internal/logging"
	_ "github.com/atlasquant/marketdata/internal/schema" // Register all datasets
	"github.com/atlasquant/marketdata/internal/series"
	"github.com/atlasquant/marketdata/internal/store"
	"github.com/atlasquant/marketdata/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"datasets", ingest.DatasetCount(),
	)

	// Apply ingestion tunables
	ingest.MaxFileSize = cfg.Ingest.MaxFileSize
	if cfg.Ingest.SettleDelay > 0 {
		ingest.DefaultSettleDelay = cfg.Ingest.SettleDelay
	}

	// Connect to database
	ctx := context.Background()
	connString := cfg.Database.ConnString()
	pool, err := store.Connect(ctx, store.PoolConfig{
		URL:             connString,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(connString); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	// Readers over the configured tables
	seriesSvc := series.NewService(pool, series.TableNames{
		Indicators:  cfg.Data.IndicatorTable,
		Descriptors: cfg.Data.DescriptorTable,
		Composition: cfg.Data.CompositionTable,
		Definitions: cfg.Data.DefinitionsTable,
		Securities:  cfg.Data.SecuritiesTable,
	})

	// Ingestion service; the series service resolves provider codes
	ingestSvc := ingest.NewService(pool, seriesSvc, ingest.ServiceOptions{
		ProviderTable: cfg.Data.IndicatorTable,
		RetryAttempts: cfg.Ingest.RetryAttempts,
		RetryBackoff:  cfg.Ingest.RetryBackoff,
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		MaxWait:       cfg.Ingest.MaxWaitTime,
		RunLogSize:    cfg.Ingest.RunLogSize,
	})

	var start civil.Date
	if cfg.Providers.StartDate != "" {
		// Validated at config load
		start, _ = civil.ParseDate(cfg.Providers.StartDate)
	}

	ingestSvc.RegisterProvider(ingest.NewSGSProvider(start))
	if cfg.Providers.FREDAPIKey != "" {
		ingestSvc.RegisterProvider(ingest.NewFREDProvider(cfg.Providers.FREDAPIKey, start))
	}
	slog.Info("providers registered", "providers", ingestSvc.Providers())

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Scheduled provider runs
	scheduler := ingest.NewScheduler(ingestSvc)
	scheduled := false
	for provider, spec := range map[string]string{
		"sgs":  cfg.Providers.SGSSchedule,
		"fred": cfg.Providers.FREDSchedule,
	} {
		if spec == "" {
			continue
		}
		if err := scheduler.Add(spec, provider); err != nil {
			slog.Error("failed to schedule provider", "provider", provider, "error", err)
			os.Exit(1)
		}
		scheduled = true
	}
	if scheduled {
		scheduler.Start(jobCtx)
	}

	// Inbox watcher
	if cfg.Ingest.InboxDir != "" {
		watcher, err := ingest.NewWatcher(ingestSvc, cfg.Ingest.InboxDir)
		if err != nil {
			slog.Error("failed to start inbox watcher", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := watcher.Run(jobCtx); err != nil {
				slog.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(cfg, pool, seriesSvc, ingestSvc)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if scheduled {
			select {
			case <-scheduler.Stop().Done():
			case <-shutdownCtx.Done():
				slog.Warn("scheduled runs did not finish in time")
			}
		}

		// Wait for active ingestions to complete (with timeout)
		if active := ingestSvc.ActiveIngests(); active > 0 {
			slog.Info("waiting for ingestions to complete", "active", active)
			if err := ingestSvc.Drain(shutdownCtx); err != nil {
				slog.Warn("ingestions did not complete in time", "error", err)
			} else {
				slog.Info("all ingestions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
