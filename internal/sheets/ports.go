package sheets

import (
	"context"
	"errors"
	"slices"
)

// ErrTableNotFound is returned by readers when no table has the given name.
var ErrTableNotFound = errors.New("table not found")

// Table is a header row of column names followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := Table{Header: slices.Clone(t.Header)}
	if t.Rows != nil {
		out.Rows = make([][]string, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = slices.Clone(r)
		}
	}
	return out
}

// Column returns the index of the named column or -1.
func (t Table) Column(name string) int {
	return slices.Index(t.Header, name)
}

// Ports for outbound adapters. Tables are keyed by a logical name chosen by
// the caller; a write replaces the whole table.
type (
	TableWriter interface {
		WriteTable(ctx context.Context, name string, t Table) error
	}

	TableReader interface {
		// ReadTable returns ErrTableNotFound when the table was never written.
		ReadTable(ctx context.Context, name string) (Table, error)
	}

	TableDeleter interface {
		DeleteTable(ctx context.Context, name string) error
	}

	TableStore interface {
		TableWriter
		TableReader
	}
)
