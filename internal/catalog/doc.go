// Package catalog is the converter's view of the library catalog: which files
// each entry has, which entries exist, and where freshly built artifacts get
// registered.
//
// Two backends implement Store. The SQLite backend (modernc.org/sqlite) owns
// its schema and is used for local mirrors, staging runs and tests. The
// PostgreSQL backend (pgx) talks to the production catalog, whose schema is
// managed elsewhere; only the columns the converter reads and writes are
// assumed. Open selects the backend from configuration.
package catalog
