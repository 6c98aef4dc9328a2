package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"owlmoney/internal/amqp"
	applog "owlmoney/internal/log"
	ports "owlmoney/internal/sheets"
	"owlmoney/internal/storage"
)

// DefaultConcurrency bounds parallel mirror calls during a sweep.
const DefaultConcurrency = 4

// SyncRepository is the versioned local store the worker mirrors from.
type SyncRepository interface {
	TableState(ctx context.Context, name string) (storage.TableState, error)
	ReadTable(ctx context.Context, name string) (ports.Table, error)
	GetPendingSyncTables(ctx context.Context, limit, maxAttempts int) ([]storage.TableState, error)
	MarkSynced(ctx context.Context, name string, version int64) error
	MarkSyncError(ctx context.Context, name string, cause error) error
	RetryFailed(ctx context.Context, maxAttempts int) (int64, error)
}

// Mirror receives copies of stored tables.
type Mirror interface {
	ports.TableWriter
	ports.TableDeleter
}

// SyncWorker copies tables from the local store into a mirror, usually
// Google Sheets.
type SyncWorker struct {
	storage     SyncRepository
	mirror      Mirror
	batchSize   int
	maxAttempts int
	concurrency int
	logger      *slog.Logger
}

func NewSyncWorker(storage SyncRepository, mirror Mirror, batchSize, maxAttempts int, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SyncWorker{
		storage:     storage,
		mirror:      mirror,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// HandleSyncMessage mirrors the table named by msg. Messages for versions
// the mirror already holds are acknowledged without work. An error asks
// for redelivery; once a table runs out of attempts it is left to
// RetryFailed instead.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TableSyncMessage) error {
	state, err := w.storage.TableState(ctx, msg.Table)
	if errors.Is(err, ports.ErrTableNotFound) {
		w.logger.WarnContext(ctx, "Sync message for unknown table", "table", msg.Table, "version", msg.Version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get table state: %w", err)
	}

	if msg.Version <= state.SyncedVersion || !state.Pending() {
		w.logger.DebugContext(ctx, "Skipping stale sync message",
			"table", msg.Table,
			"version", msg.Version,
			"synced_version", state.SyncedVersion)
		return nil
	}

	if err := w.syncTable(ctx, state); err != nil {
		if state.SyncAttempts+1 >= int64(w.maxAttempts) {
			w.logger.ErrorContext(ctx, "Table sync failed permanently after max attempts",
				"table", state.Name, "attempts", state.SyncAttempts+1, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// ProcessPending mirrors one batch of tables whose mirror is behind and
// returns how many were synced. This backs up the message path.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep to recover from worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

// RetryFailed makes tables that ran out of attempts pending again.
func (w *SyncWorker) RetryFailed(ctx context.Context) (int64, error) {
	return w.storage.RetryFailed(ctx, w.maxAttempts)
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (int, error) {
	pending, err := w.storage.GetPendingSyncTables(ctx, limit, w.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("get pending tables: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending tables", "count", len(pending))

	var synced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, state := range pending {
		g.Go(func() error {
			// One table failing must not cancel the others.
			if err := w.syncTable(gctx, state); err != nil {
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(synced.Load()), err
	}
	return int(synced.Load()), ctx.Err()
}

func (w *SyncWorker) syncTable(ctx context.Context, state storage.TableState) error {
	var err error
	if state.Deleted {
		err = w.mirror.DeleteTable(ctx, state.Name)
	} else {
		var t ports.Table
		t, err = w.storage.ReadTable(ctx, state.Name)
		if errors.Is(err, ports.ErrTableNotFound) {
			// Deleted after the state was read; the deletion has its own version.
			return nil
		}
		if err == nil {
			err = w.mirror.WriteTable(ctx, state.Name, t)
		}
	}

	if err != nil && ctx.Err() != nil {
		// Shutting down; the attempt does not count.
		return ctx.Err()
	}
	fields := applog.NewFields().WithOperation(applog.OpSync).WithTable(state.Name, state.Version)
	if err != nil {
		w.logger.WarnContext(ctx, "Mirror attempt failed", fields.WithError(err).ToSlice()...)
		if markErr := w.storage.MarkSyncError(ctx, state.Name, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", "table", state.Name, "error", markErr)
		}
		return fmt.Errorf("mirror %s: %w", state.Name, err)
	}

	if err := w.storage.MarkSynced(ctx, state.Name, state.Version); err != nil {
		// The mirror holds the data; the next sweep rewrites it.
		w.logger.ErrorContext(ctx, "Failed to mark as synced", "table", state.Name, "error", err)
	}

	fields["deleted"] = state.Deleted
	w.logger.InfoContext(ctx, "Table mirrored", fields.ToSlice()...)
	return nil
}
