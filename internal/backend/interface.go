package backend

import (
	"context"

	"owlmoney/internal/cache"
	ports "owlmoney/internal/sheets"
)

// Tables is what every backend provides to the persistence layer.
type Tables interface {
	ports.TableStore
	ports.TableDeleter
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Tables  Tables
	Cleanup CleanupFunc
	// Caches lists expiring caches the caller should sweep periodically.
	Caches []cache.Cleaner
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	CSVBackend    BackendType = "csv"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, CSVBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
