package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ports "owlmoney/internal/sheets"
)

// TableRepository is the versioned local store behind TableService.
type TableRepository interface {
	WriteTable(ctx context.Context, name string, t ports.Table) (int64, error)
	DeleteTable(ctx context.Context, name string) (int64, error)
	Close() error
}

// SyncPublisher announces new table versions to the mirror worker.
type SyncPublisher interface {
	PublishTableSync(ctx context.Context, table string, version int64) error
	Close() error
}

// TableService saves tables locally and publishes a sync message per write.
type TableService struct {
	storage   TableRepository
	publisher SyncPublisher
	logger    *slog.Logger
}

// NewTableService wires storage and an optional publisher (nil disables
// publishing; the worker sweep still picks the tables up).
func NewTableService(storage TableRepository, publisher SyncPublisher, logger *slog.Logger) *TableService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableService{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
	}
}

// Save stores the table and announces its new version. A failed publish
// is logged only: the table is saved and stays pending for the sweep.
func (s *TableService) Save(ctx context.Context, name string, t ports.Table) (int64, error) {
	version, err := s.storage.WriteTable(ctx, name, t)
	if err != nil {
		return 0, fmt.Errorf("save table: %w", err)
	}
	s.publish(ctx, name, version)
	return version, nil
}

// Delete marks the table deleted and announces the deletion.
func (s *TableService) Delete(ctx context.Context, name string) (int64, error) {
	version, err := s.storage.DeleteTable(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("delete table: %w", err)
	}
	if version > 0 {
		s.publish(ctx, name, version)
	}
	return version, nil
}

func (s *TableService) publish(ctx context.Context, name string, version int64) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping sync message", "table", name)
		return
	}
	if err := s.publisher.PublishTableSync(ctx, name, version); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish sync message",
			"table", name, "version", version, "error", err)
	}
}

// Close closes both storage and the publisher.
func (s *TableService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close table service: %w", err)
	}
	return nil
}
