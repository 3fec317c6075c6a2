package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Entry seeds a book row in a SQLite catalog.
type Entry struct {
	ID        int
	Title     string
	Downloads int
	NonText   bool
}

// OpenSQLite opens (creating when needed) the SQLite catalog at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	ctx = ensureContext(ctx)
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog: sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// AddEntry inserts or replaces a book row.
func (s *SQLiteStore) AddEntry(ctx context.Context, entry Entry) error {
	if entry.ID <= 0 {
		return fmt.Errorf("catalog: invalid entry id %d", entry.ID)
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO books (pk, title, downloads, is_not_text)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pk) DO UPDATE SET title = excluded.title, downloads = excluded.downloads, is_not_text = excluded.is_not_text`,
		entry.ID, nullableString(entry.Title), entry.Downloads, boolToInt(entry.NonText))
	if err != nil {
		return fmt.Errorf("add entry %d: %w", entry.ID, err)
	}
	return nil
}

// AddFile inserts or replaces a file row with every column supplied.
func (s *SQLiteStore) AddFile(ctx context.Context, file File) error {
	compression := file.Compression
	if compression == "" {
		compression = CompressionNone
	}
	modified := file.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO files
		(fk_books, archive_path, fk_filetypes, fk_encodings, compression, diskstatus, obsoleted, extent, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(archive_path) DO UPDATE SET
			fk_books = excluded.fk_books,
			fk_filetypes = excluded.fk_filetypes,
			fk_encodings = excluded.fk_encodings,
			compression = excluded.compression,
			diskstatus = excluded.diskstatus,
			obsoleted = excluded.obsoleted,
			extent = excluded.extent,
			modified = excluded.modified`,
		file.EntryID, file.Path, nullableString(file.FileType), nullableString(file.Encoding), compression,
		file.DiskStatus, boolToInt(file.Obsoleted), file.Size, formatTime(modified))
	if err != nil {
		return fmt.Errorf("add file %s: %w", file.Path, err)
	}
	return nil
}

// ListFiles implements Store.
func (s *SQLiteStore) ListFiles(ctx context.Context, entryID int) ([]File, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT fk_books, archive_path, fk_filetypes, fk_encodings,
			compression, diskstatus, obsoleted, extent, modified
		FROM files
		WHERE fk_books = ? AND compression = 'none' AND diskstatus = 0 AND obsoleted = 0
		ORDER BY fk_filetypes, fk_encodings, modified DESC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list files for %d: %w", entryID, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var (
			file      File
			fileType  sql.NullString
			encoding  sql.NullString
			obsoleted int
			modified  string
		)
		if err := rows.Scan(&file.EntryID, &file.Path, &fileType, &encoding,
			&file.Compression, &file.DiskStatus, &obsoleted, &file.Size, &modified); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		file.FileType = fileType.String
		file.Encoding = encoding.String
		file.Obsoleted = obsoleted != 0
		if file.Modified, err = parseTime(modified); err != nil {
			return nil, fmt.Errorf("parse modified for %s: %w", file.Path, err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// RegisterFile implements Store.
func (s *SQLiteStore) RegisterFile(ctx context.Context, reg Registration) error {
	return s.AddFile(ctx, File{
		EntryID:     reg.EntryID,
		Path:        reg.Path,
		FileType:    reg.FileType,
		Compression: CompressionNone,
		Size:        reg.Size,
		Modified:    reg.Modified,
	})
}

// RemoveFile implements Store.
func (s *SQLiteStore) RemoveFile(ctx context.Context, path string) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM files WHERE archive_path = ?", path); err != nil {
		return fmt.Errorf("remove file %s: %w", path, err)
	}
	return nil
}

// IsNonText implements Store. Unknown entries are treated as text.
func (s *SQLiteStore) IsNonText(ctx context.Context, entryID int) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT is_not_text FROM books WHERE pk = ?", entryID).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is_not_text for %d: %w", entryID, err)
	}
	return flag != 0, nil
}

// EntryExists implements Store.
func (s *SQLiteStore) EntryExists(ctx context.Context, entryID int) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM books WHERE pk = ?", entryID).Scan(&count); err != nil {
		return false, fmt.Errorf("entry exists %d: %w", entryID, err)
	}
	return count > 0, nil
}

// LastEntryID implements Store. An empty catalog yields 0.
func (s *SQLiteStore) LastEntryID(ctx context.Context) (int, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT MAX(pk) FROM books").Scan(&last); err != nil {
		return 0, fmt.Errorf("last entry id: %w", err)
	}
	return int(last.Int64), nil
}

// RecentEntries implements Store.
func (s *SQLiteStore) RecentEntries(ctx context.Context, since time.Time) ([]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT DISTINCT fk_books FROM files WHERE modified >= ? ORDER BY fk_books", formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("recent entries: %w", err)
	}
	return scanIDs(rows)
}

// TopEntries implements Store.
func (s *SQLiteStore) TopEntries(ctx context.Context, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT pk FROM books ORDER BY downloads DESC, pk LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("top entries: %w", err)
	}
	return scanIDs(rows)
}

// FiletypeEntries implements Store.
func (s *SQLiteStore) FiletypeEntries(ctx context.Context, fileType string) ([]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT fk_books FROM files
		WHERE fk_filetypes = ? AND diskstatus = 0 AND obsoleted = 0
		ORDER BY fk_books`, fileType)
	if err != nil {
		return nil, fmt.Errorf("filetype entries %s: %w", fileType, err)
	}
	return scanIDs(rows)
}
