package csvfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	ports "owlmoney/internal/sheets"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	in := ports.Table{
		Header: []string{"description", "amount"},
		Rows: [][]string{
			{"coffee, large", "3.50"},
			{`say "hi"`, "1.00"},
		},
	}
	if err := s.WriteTable(ctx, "account/jun savings", in); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	got, err := s.ReadTable(ctx, "account/jun savings")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(got.Rows) != 2 || got.Rows[0][0] != "coffee, large" || got.Rows[1][0] != `say "hi"` {
		t.Fatalf("unexpected rows: %q", got.Rows)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Fatalf("expected one file without temp leftovers, got %d", len(entries))
	}
}

func TestStoreMissingAndDelete(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := s.ReadTable(ctx, "cards"); !errors.Is(err, ports.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
	_ = s.WriteTable(ctx, "cards", ports.Table{Header: []string{"name"}})
	if err := s.DeleteTable(ctx, "cards"); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if err := s.DeleteTable(ctx, "cards"); err != nil {
		t.Fatalf("second DeleteTable: %v", err)
	}
	if _, err := s.ReadTable(ctx, "cards"); !errors.Is(err, ports.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound after delete, got %v", err)
	}
}

func TestNewRejectsEmptyDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
