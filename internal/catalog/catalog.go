package catalog

import (
	"context"
	"fmt"
	"time"

	"ebookconverter/internal/config"
)

// CompressionNone marks an uncompressed file record.
const CompressionNone = "none"

// File is one file record attached to a catalog entry.
type File struct {
	EntryID     int
	Path        string
	FileType    string
	Encoding    string
	Compression string
	DiskStatus  int
	Obsoleted   bool
	Size        int64
	Modified    time.Time
}

// Registration describes a produced artifact to record under an entry.
type Registration struct {
	EntryID  int
	Path     string
	FileType string
	Size     int64
	Modified time.Time
}

// Store is the catalog surface the converter depends on.
type Store interface {
	// ListFiles returns the entry's uncompressed, present, non-obsoleted
	// files ordered by type, encoding and newest modification first.
	ListFiles(ctx context.Context, entryID int) ([]File, error)
	// RegisterFile inserts or refreshes the record for an artifact path.
	RegisterFile(ctx context.Context, reg Registration) error
	// RemoveFile deletes the record for a path. Missing records are not an error.
	RemoveFile(ctx context.Context, path string) error
	IsNonText(ctx context.Context, entryID int) (bool, error)
	EntryExists(ctx context.Context, entryID int) (bool, error)
	LastEntryID(ctx context.Context) (int, error)
	// RecentEntries returns entries with files modified at or after since.
	RecentEntries(ctx context.Context, since time.Time) ([]int, error)
	// TopEntries returns the n most downloaded entries.
	TopEntries(ctx context.Context, n int) ([]int, error)
	// FiletypeEntries returns entries having a present file of fileType.
	FiletypeEntries(ctx context.Context, fileType string) ([]int, error)
	Close() error
}

// Open connects to the catalog backend selected by cfg.Catalog.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Catalog.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.Catalog.DSN)
	case "postgres":
		return OpenPostgres(ctx, cfg.Catalog.DSN)
	default:
		return nil, fmt.Errorf("catalog: unsupported driver %q", cfg.Catalog.Driver)
	}
}
