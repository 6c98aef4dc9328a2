// Package csvfile stores each table as one CSV file in a directory.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	ports "owlmoney/internal/sheets"
)

var (
	_ ports.TableStore   = (*Store)(nil)
	_ ports.TableDeleter = (*Store)(nil)
)

type Store struct {
	dir string
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("csv data directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, url.PathEscape(name)+".csv")
}

// WriteTable replaces the file of the table. The new content is written to a
// temporary file first and renamed into place.
func (s *Store) WriteTable(ctx context.Context, name string, t ports.Table) error {
	if name == "" {
		return errors.New("table name cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".table-*.csv")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s rows: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// ReadTable parses the file of the table. The first record is the header.
func (s *Store) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	if err := ctx.Err(); err != nil {
		return ports.Table{}, err
	}
	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ports.Table{}, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	if err != nil {
		return ports.Table{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return ports.Table{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(records) == 0 {
		return ports.Table{}, nil
	}
	return ports.Table{Header: records[0], Rows: records[1:]}, nil
}

func (s *Store) DeleteTable(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
