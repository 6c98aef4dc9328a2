package adapters

import (
	"context"

	"owlmoney/internal/services"
	ports "owlmoney/internal/sheets"
)

var (
	_ ports.TableStore   = (*SQLiteTables)(nil)
	_ ports.TableDeleter = (*SQLiteTables)(nil)
)

// TableSource reads stored tables.
type TableSource interface {
	ReadTable(ctx context.Context, name string) (ports.Table, error)
}

// SQLiteTables exposes the versioned sqlite store as a plain table store.
// Writes and deletes go through the service so every change is published
// for mirroring; reads come straight from the repository.
type SQLiteTables struct {
	source  TableSource
	service *services.TableService
}

func NewSQLiteTables(source TableSource, service *services.TableService) *SQLiteTables {
	return &SQLiteTables{
		source:  source,
		service: service,
	}
}

// WriteTable implements sheets.TableWriter
func (a *SQLiteTables) WriteTable(ctx context.Context, name string, t ports.Table) error {
	_, err := a.service.Save(ctx, name, t)
	return err
}

// ReadTable implements sheets.TableReader
func (a *SQLiteTables) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	return a.source.ReadTable(ctx, name)
}

// DeleteTable implements sheets.TableDeleter
func (a *SQLiteTables) DeleteTable(ctx context.Context, name string) error {
	_, err := a.service.Delete(ctx, name)
	return err
}

// Close releases the repository and the publisher.
func (a *SQLiteTables) Close() error {
	return a.service.Close()
}
