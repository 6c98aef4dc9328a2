package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ports "owlmoney/internal/sheets"

	_ "modernc.org/sqlite"
)

// DefaultMaxSyncAttempts is how many failed mirror attempts a table gets
// before it is left for RetryFailed.
const DefaultMaxSyncAttempts = 5

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// TableState is the version bookkeeping of one stored table.
type TableState struct {
	Name          string
	Version       int64
	SyncedVersion int64
	Deleted       bool
	SyncAttempts  int64
	LastError     string
}

// Pending reports whether the mirror is behind the stored version.
func (s TableState) Pending() bool { return s.SyncedVersion < s.Version }

func stateOf(t LedgerTable) TableState {
	return TableState{
		Name:          t.Name,
		Version:       t.Version,
		SyncedVersion: t.SyncedVersion,
		Deleted:       t.Deleted,
		SyncAttempts:  t.SyncAttempts,
		LastError:     t.LastError.String,
	}
}

// SyncStats counts tables by mirror state.
type SyncStats = GetSyncStatsRow

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WriteTable replaces the rows of a table and returns its new version.
func (r *SQLiteRepository) WriteTable(ctx context.Context, name string, t ports.Table) (int64, error) {
	header, err := json.Marshal(nonNil(t.Header))
	if err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	rows := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		b, err := json.Marshal(nonNil(row))
		if err != nil {
			return 0, fmt.Errorf("encode row %d: %w", i+1, err)
		}
		rows[i] = string(b)
	}

	var version int64
	err = r.inTx(ctx, func(q *Queries) error {
		v, err := q.UpsertTable(ctx, UpsertTableParams{Name: name, Header: string(header)})
		if err != nil {
			return fmt.Errorf("upsert table: %w", err)
		}
		if err := q.DeleteRows(ctx, name); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		for i, cells := range rows {
			if err := q.InsertRow(ctx, InsertRowParams{TableName: name, Position: int64(i), Cells: cells}); err != nil {
				return fmt.Errorf("insert row %d: %w", i+1, err)
			}
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write table %s: %w", name, err)
	}

	slog.DebugContext(ctx, "Table saved to SQLite", "table", name, "version", version, "rows", len(rows))
	return version, nil
}

// DeleteTable drops the rows of a table and records the deletion as a new
// version, so the mirror can follow.
func (r *SQLiteRepository) DeleteTable(ctx context.Context, name string) (int64, error) {
	var version int64
	err := r.inTx(ctx, func(q *Queries) error {
		if _, err := q.GetTable(ctx, name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		v, err := q.UpsertTable(ctx, UpsertTableParams{Name: name, Header: "[]", Deleted: true})
		if err != nil {
			return err
		}
		version = v
		return q.DeleteRows(ctx, name)
	})
	if err != nil {
		return 0, fmt.Errorf("delete table %s: %w", name, err)
	}
	return version, nil
}

// ReadTable returns the stored rows of a table.
func (r *SQLiteRepository) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	meta, err := r.queries.GetTable(ctx, name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && meta.Deleted) {
		return ports.Table{}, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	if err != nil {
		return ports.Table{}, fmt.Errorf("get table %s: %w", name, err)
	}

	var t ports.Table
	if err := json.Unmarshal([]byte(meta.Header), &t.Header); err != nil {
		return ports.Table{}, fmt.Errorf("decode header of %s: %w", name, err)
	}
	rows, err := r.queries.ListRows(ctx, name)
	if err != nil {
		return ports.Table{}, fmt.Errorf("list rows of %s: %w", name, err)
	}
	for i, raw := range rows {
		var row []string
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return ports.Table{}, fmt.Errorf("decode row %d of %s: %w", i+1, name, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// TableState returns the version bookkeeping of a table.
func (r *SQLiteRepository) TableState(ctx context.Context, name string) (TableState, error) {
	t, err := r.queries.GetTable(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return TableState{}, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	if err != nil {
		return TableState{}, fmt.Errorf("get table %s: %w", name, err)
	}
	return stateOf(t), nil
}

// Tables lists every stored table, deleted ones included.
func (r *SQLiteRepository) Tables(ctx context.Context) ([]TableState, error) {
	items, err := r.queries.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make([]TableState, len(items))
	for i, t := range items {
		out[i] = stateOf(t)
	}
	return out, nil
}

// GetPendingSyncTables returns tables whose mirror is behind, oldest change
// first, skipping tables that already failed maxAttempts times.
func (r *SQLiteRepository) GetPendingSyncTables(ctx context.Context, limit, maxAttempts int) ([]TableState, error) {
	items, err := r.queries.GetPendingSyncTables(ctx, GetPendingSyncTablesParams{
		MaxAttempts: int64(maxAttempts),
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("get pending sync tables: %w", err)
	}
	out := make([]TableState, len(items))
	for i, t := range items {
		out[i] = stateOf(t)
	}
	return out, nil
}

// MarkSynced records that the mirror holds version. Older versions never
// move the mark back.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, name string, version int64) error {
	n, err := r.queries.MarkTableSynced(ctx, MarkTableSyncedParams{Version: version, Name: name})
	if err != nil {
		return fmt.Errorf("mark table synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	slog.DebugContext(ctx, "Table marked as synced", "table", name, "version", version)
	return nil
}

// MarkSyncError counts a failed mirror attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.queries.MarkTableSyncError(ctx, MarkTableSyncErrorParams{LastError: msg, Name: name}); err != nil {
		return fmt.Errorf("mark table sync error: %w", err)
	}
	slog.WarnContext(ctx, "Table marked with sync error", "table", name, "error", msg)
	return nil
}

// RetryFailed makes tables that ran out of attempts pending again.
func (r *SQLiteRepository) RetryFailed(ctx context.Context, maxAttempts int) (int64, error) {
	n, err := r.queries.RetryFailedSyncs(ctx, int64(maxAttempts))
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SyncStats(ctx context.Context, maxAttempts int) (SyncStats, error) {
	s, err := r.queries.GetSyncStats(ctx, int64(maxAttempts))
	if err != nil {
		return SyncStats{}, fmt.Errorf("get sync stats: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
