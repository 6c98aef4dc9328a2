package backend

import (
	"context"
	"fmt"
	"log/slog"

	"owlmoney/internal/adapters"
	"owlmoney/internal/amqp"
	"owlmoney/internal/cache"
	"owlmoney/internal/services"
	ports "owlmoney/internal/sheets"
	"owlmoney/internal/sheets/csvfile"
	gsheet "owlmoney/internal/sheets/google"
	"owlmoney/internal/sheets/memory"
	"owlmoney/internal/storage"
)

const defaultSheetsCacheSize = 64

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return &BackendResult{Tables: memory.New()}, nil
	case CSVBackend:
		return f.createCSVBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCSVBackend(config Config) (*BackendResult, error) {
	store, err := csvfile.New(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize csv backend: %w", err)
	}
	f.logger.Info("Initialized csv backend", "data_directory", store.Dir())
	return &BackendResult{Tables: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// A nil interface, not a nil *amqp.Client, disables publishing.
	var publisher services.SyncPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	service := services.NewTableService(repo, publisher, f.logger)
	tables := adapters.NewSQLiteTables(repo, service)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Tables:  tables,
		Cleanup: tables.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	size := config.SheetsCacheSize
	if size <= 0 {
		size = defaultSheetsCacheSize
	}
	reads := cache.NewLRUCache[ports.Table](size, config.SheetsCacheTTL)

	cli, err := gsheet.Open(ctx, config.GoogleSpreadsheetID,
		gsheet.WithTabPrefix(config.GoogleTabPrefix),
		gsheet.WithReadCache(reads))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "tab_prefix", config.GoogleTabPrefix)

	return &BackendResult{
		Tables: cli,
		Caches: []cache.Cleaner{reads},
	}, nil
}
