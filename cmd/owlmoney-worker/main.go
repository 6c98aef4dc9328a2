package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"owlmoney/internal/amqp"
	"owlmoney/internal/cache"
	"owlmoney/internal/cli"
	applog "owlmoney/internal/log"
	"owlmoney/internal/ratelimit"
	"owlmoney/internal/services"
	ports "owlmoney/internal/sheets"
	gsheet "owlmoney/internal/sheets/google"
	"owlmoney/internal/storage"
	"owlmoney/internal/worker"
)

const (
	mirrorCacheSize = 64
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	appLogger, err := cli.SetupLogger(cfg.LogLevel, os.Stdout, applog.ComponentWorker)
	if err != nil {
		cli.Fatal(nil, "Invalid log level", err)
	}
	logger := appLogger.Slog()
	appLogger.LogFields(context.Background(), slog.LevelInfo, "Starting owlmoney-worker",
		applog.NewFields().WithOperation(applog.OpStartup))

	if cfg.GoogleSpreadsheetID == "" {
		cli.Fatal(logger, "Nothing to mirror", errors.New("GOOGLE_SPREADSHEET_ID is not set"))
	}

	ctx, cancel := cli.ShutdownContext(context.Background(), logger)
	defer cancel()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	reads := cache.NewLRUCache[ports.Table](mirrorCacheSize, cfg.SheetsCacheTTL)
	caches := cache.NewManager(appLogger.WithComponent(applog.ComponentCache).Slog())
	caches.Register(reads)
	caches.StartCleanup(ctx, cfg.SheetsCacheTTL)
	defer caches.Stop()

	mirror, err := gsheet.Open(ctx, cfg.GoogleSpreadsheetID,
		gsheet.WithTabPrefix(cfg.GoogleTabPrefix),
		gsheet.WithReadCache(reads))
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.SheetsWritesPerMin})
	syncWorker := worker.NewSyncWorker(repo, worker.Throttle(mirror, limiter, cfg.GoogleSpreadsheetID), cfg.SyncBatchSize, cfg.SyncMaxAttempts,
		appLogger.WithComponent(applog.ComponentWorker).Slog())

	if stats, err := repo.SyncStats(ctx, cfg.SyncMaxAttempts); err == nil {
		logger.Info("Sync state", "total", stats.Total, "synced", stats.Synced, "pending", stats.Pending, "failed", stats.Failed)
	}

	// Catch up on anything published while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval:  cfg.SyncInterval,
		RetryInterval: cfg.SyncRetryEvery,
	}, logger)
	if err := processor.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start sync processor", err)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on periodic sweeps", "error", err)
		} else {
			defer client.Close()
			go func() {
				err := client.ConsumeTableSync(ctx, syncWorker.HandleSyncMessage)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", "error", err)
					cancel()
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic sweeps", "interval", cfg.SyncInterval)
	}

	<-ctx.Done()
	stats := mirror.CacheStats()
	appLogger.LogFields(context.Background(), slog.LevelInfo, "Shutting down worker...",
		applog.NewFields().WithOperation(applog.OpShutdown).WithError(context.Cause(ctx)))
	logger.Info("Mirror read cache", "hits", stats.Hits, "misses", stats.Misses, "size", stats.Size)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Sync processor did not stop cleanly", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
