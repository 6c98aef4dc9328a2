package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// LedgerTable is one row of ledger_tables.
type LedgerTable struct {
	Name          string
	Header        string
	Version       int64
	SyncedVersion int64
	Deleted       bool
	SyncAttempts  int64
	LastError     sql.NullString
	UpdatedAt     time.Time
}

// updated_at is read as unix seconds so scanning does not depend on the
// driver's datetime parsing.
const ledgerTableColumns = `name, header, version, synced_version, deleted, sync_attempts, last_error, CAST(strftime('%s', updated_at) AS INTEGER)`

func scanLedgerTable(row interface{ Scan(...any) error }) (LedgerTable, error) {
	var (
		i       LedgerTable
		updated int64
	)
	err := row.Scan(
		&i.Name,
		&i.Header,
		&i.Version,
		&i.SyncedVersion,
		&i.Deleted,
		&i.SyncAttempts,
		&i.LastError,
		&updated,
	)
	i.UpdatedAt = time.Unix(updated, 0).UTC()
	return i, err
}

const upsertTable = `
INSERT INTO ledger_tables (name, header, version, deleted, sync_attempts, last_error, updated_at)
VALUES (?, ?, 1, ?, 0, NULL, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
    header = excluded.header,
    version = ledger_tables.version + 1,
    deleted = excluded.deleted,
    sync_attempts = 0,
    last_error = NULL,
    updated_at = CURRENT_TIMESTAMP
RETURNING version
`

type UpsertTableParams struct {
	Name    string
	Header  string
	Deleted bool
}

// UpsertTable creates the table entry or bumps its version.
func (q *Queries) UpsertTable(ctx context.Context, arg UpsertTableParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertTable, arg.Name, arg.Header, arg.Deleted)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const deleteRows = `DELETE FROM ledger_rows WHERE table_name = ?`

func (q *Queries) DeleteRows(ctx context.Context, tableName string) error {
	_, err := q.db.ExecContext(ctx, deleteRows, tableName)
	return err
}

const insertRow = `INSERT INTO ledger_rows (table_name, position, cells) VALUES (?, ?, ?)`

type InsertRowParams struct {
	TableName string
	Position  int64
	Cells     string
}

func (q *Queries) InsertRow(ctx context.Context, arg InsertRowParams) error {
	_, err := q.db.ExecContext(ctx, insertRow, arg.TableName, arg.Position, arg.Cells)
	return err
}

const getTable = `SELECT ` + ledgerTableColumns + ` FROM ledger_tables WHERE name = ?`

func (q *Queries) GetTable(ctx context.Context, name string) (LedgerTable, error) {
	return scanLedgerTable(q.db.QueryRowContext(ctx, getTable, name))
}

const listRows = `SELECT cells FROM ledger_rows WHERE table_name = ? ORDER BY position`

func (q *Queries) ListRows(ctx context.Context, tableName string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listRows, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		items = append(items, cells)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTables = `SELECT ` + ledgerTableColumns + ` FROM ledger_tables ORDER BY name`

func (q *Queries) ListTables(ctx context.Context) ([]LedgerTable, error) {
	return q.queryTables(ctx, listTables)
}

const getPendingSyncTables = `
SELECT ` + ledgerTableColumns + ` FROM ledger_tables
WHERE synced_version < version AND sync_attempts < ?
ORDER BY updated_at, name
LIMIT ?
`

type GetPendingSyncTablesParams struct {
	MaxAttempts int64
	Limit       int64
}

func (q *Queries) GetPendingSyncTables(ctx context.Context, arg GetPendingSyncTablesParams) ([]LedgerTable, error) {
	return q.queryTables(ctx, getPendingSyncTables, arg.MaxAttempts, arg.Limit)
}

func (q *Queries) queryTables(ctx context.Context, query string, args ...interface{}) ([]LedgerTable, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerTable
	for rows.Next() {
		i, err := scanLedgerTable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markTableSynced = `
UPDATE ledger_tables
SET synced_version = MAX(synced_version, ?), sync_attempts = 0, last_error = NULL
WHERE name = ?
`

type MarkTableSyncedParams struct {
	Version int64
	Name    string
}

func (q *Queries) MarkTableSynced(ctx context.Context, arg MarkTableSyncedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, markTableSynced, arg.Version, arg.Name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markTableSyncError = `
UPDATE ledger_tables
SET sync_attempts = sync_attempts + 1, last_error = ?
WHERE name = ?
`

type MarkTableSyncErrorParams struct {
	LastError string
	Name      string
}

func (q *Queries) MarkTableSyncError(ctx context.Context, arg MarkTableSyncErrorParams) error {
	_, err := q.db.ExecContext(ctx, markTableSyncError, arg.LastError, arg.Name)
	return err
}

const retryFailedSyncs = `UPDATE ledger_tables SET sync_attempts = 0 WHERE synced_version < version AND sync_attempts >= ?`

func (q *Queries) RetryFailedSyncs(ctx context.Context, maxAttempts int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedSyncs, maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSyncStats = `
SELECT
    COUNT(*) AS total,
    COALESCE(SUM(CASE WHEN synced_version >= version THEN 1 ELSE 0 END), 0) AS synced,
    COALESCE(SUM(CASE WHEN synced_version < version AND sync_attempts < ? THEN 1 ELSE 0 END), 0) AS pending,
    COALESCE(SUM(CASE WHEN synced_version < version AND sync_attempts >= ? THEN 1 ELSE 0 END), 0) AS failed
FROM ledger_tables
`

type GetSyncStatsRow struct {
	Total   int64
	Synced  int64
	Pending int64
	Failed  int64
}

func (q *Queries) GetSyncStats(ctx context.Context, maxAttempts int64) (GetSyncStatsRow, error) {
	row := q.db.QueryRowContext(ctx, getSyncStats, maxAttempts, maxAttempts)
	var i GetSyncStatsRow
	err := row.Scan(&i.Total, &i.Synced, &i.Pending, &i.Failed)
	return i, err
}
