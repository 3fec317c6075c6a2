package testsupport

import (
	"context"
	"testing"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
)

// MustOpenCatalog opens the SQLite catalog named by cfg and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.SQLiteStore {
	t.Helper()

	store, err := catalog.OpenSQLite(context.Background(), cfg.Catalog.DSN)
	if err != nil {
		t.Fatalf("catalog.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedEntry adds a book row and its file records.
func SeedEntry(t testing.TB, store *catalog.SQLiteStore, entryID int, files ...catalog.File) {
	t.Helper()

	ctx := context.Background()
	if err := store.AddEntry(ctx, catalog.Entry{ID: entryID}); err != nil {
		t.Fatalf("store.AddEntry: %v", err)
	}
	for _, file := range files {
		file.EntryID = entryID
		if err := store.AddFile(ctx, file); err != nil {
			t.Fatalf("store.AddFile: %v", err)
		}
	}
}
