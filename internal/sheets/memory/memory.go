package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	ports "owlmoney/internal/sheets"
)

var (
	_ ports.TableStore   = (*Store)(nil)
	_ ports.TableDeleter = (*Store)(nil)
)

// Store keeps tables in process memory. It backs tests and dry runs.
type Store struct {
	mu     sync.Mutex
	tables map[string]ports.Table
	writes int
}

func New() *Store {
	return &Store{tables: map[string]ports.Table{}}
}

// WriteTable replaces the table called name with a copy of t.
func (s *Store) WriteTable(_ context.Context, name string, t ports.Table) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = t.Clone()
	s.writes++
	return nil
}

// ReadTable returns a copy of the table called name.
func (s *Store) ReadTable(_ context.Context, name string) (ports.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return ports.Table{}, fmt.Errorf("%s: %w", name, ports.ErrTableNotFound)
	}
	return t.Clone(), nil
}

func (s *Store) DeleteTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

// Names returns the stored table names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.tables))
}

// Writes returns how many writes the store accepted.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
