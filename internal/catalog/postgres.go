package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by the production catalog database.
//
// It relies on books(pk, downloads), files(fk_books, archive_path unique,
// fk_filetypes, fk_encodings, fk_compressions, diskstatus, obsoleted, extent,
// modified) and the mn_books_categories/categories pair for content kinds.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to catalog: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, entryID int) ([]File, error) {
	rows, err := s.pool.Query(ensureContext(ctx),
		`SELECT fk_books, archive_path, fk_filetypes, fk_encodings, fk_compressions,
		        diskstatus, obsoleted, extent, modified
		 FROM files
		 WHERE fk_books = $1 AND fk_compressions = 'none' AND diskstatus = 0 AND obsoleted = 0
		 ORDER BY fk_filetypes, fk_encodings, modified DESC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list files for %d: %w", entryID, err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (File, error) {
		var (
			file      File
			fileType  *string
			encoding  *string
			obsoleted int
		)
		if err := row.Scan(&file.EntryID, &file.Path, &fileType, &encoding, &file.Compression,
			&file.DiskStatus, &obsoleted, &file.Size, &file.Modified); err != nil {
			return File{}, err
		}
		if fileType != nil {
			file.FileType = *fileType
		}
		if encoding != nil {
			file.Encoding = *encoding
		}
		file.Obsoleted = obsoleted != 0
		return file, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan files for %d: %w", entryID, err)
	}
	return files, nil
}

func (s *PostgresStore) RegisterFile(ctx context.Context, reg Registration) error {
	modified := reg.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	_, err := s.pool.Exec(ensureContext(ctx),
		`INSERT INTO files (fk_books, archive_path, fk_filetypes, fk_compressions, diskstatus, obsoleted, extent, modified)
		 VALUES ($1, $2, $3, 'none', 0, 0, $4, $5)
		 ON CONFLICT (archive_path) DO UPDATE SET
		     fk_books = EXCLUDED.fk_books,
		     fk_filetypes = EXCLUDED.fk_filetypes,
		     fk_compressions = 'none',
		     diskstatus = 0,
		     obsoleted = 0,
		     extent = EXCLUDED.extent,
		     modified = EXCLUDED.modified`,
		reg.EntryID, reg.Path, reg.FileType, reg.Size, modified)
	if err != nil {
		return fmt.Errorf("register file %s: %w", reg.Path, err)
	}
	return nil
}

func (s *PostgresStore) RemoveFile(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ensureContext(ctx), "DELETE FROM files WHERE archive_path = $1", path); err != nil {
		return fmt.Errorf("remove file %s: %w", path, err)
	}
	return nil
}

// IsNonText reports whether the entry carries any category other than Text.
func (s *PostgresStore) IsNonText(ctx context.Context, entryID int) (bool, error) {
	var nonText bool
	err := s.pool.QueryRow(ensureContext(ctx),
		`SELECT EXISTS (
		     SELECT 1 FROM mn_books_categories mbc
		     JOIN categories c ON c.pk = mbc.fk_categories
		     WHERE mbc.fk_books = $1 AND c.category <> 'Text')`, entryID).Scan(&nonText)
	if err != nil {
		return false, fmt.Errorf("is_not_text for %d: %w", entryID, err)
	}
	return nonText, nil
}

func (s *PostgresStore) EntryExists(ctx context.Context, entryID int) (bool, error) {
	var pk int
	err := s.pool.QueryRow(ensureContext(ctx), "SELECT pk FROM books WHERE pk = $1", entryID).Scan(&pk)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("entry exists %d: %w", entryID, err)
	}
	return true, nil
}

func (s *PostgresStore) LastEntryID(ctx context.Context) (int, error) {
	var last *int
	if err := s.pool.QueryRow(ensureContext(ctx), "SELECT MAX(pk) FROM books").Scan(&last); err != nil {
		return 0, fmt.Errorf("last entry id: %w", err)
	}
	if last == nil {
		return 0, nil
	}
	return *last, nil
}

func (s *PostgresStore) RecentEntries(ctx context.Context, since time.Time) ([]int, error) {
	return s.queryIDs(ctx, "recent entries",
		"SELECT DISTINCT fk_books FROM files WHERE modified >= $1 ORDER BY fk_books", since)
}

func (s *PostgresStore) TopEntries(ctx context.Context, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryIDs(ctx, "top entries",
		"SELECT pk FROM books ORDER BY downloads DESC, pk LIMIT $1", n)
}

func (s *PostgresStore) FiletypeEntries(ctx context.Context, fileType string) ([]int, error) {
	return s.queryIDs(ctx, "filetype entries",
		`SELECT DISTINCT fk_books FROM files
		 WHERE fk_filetypes = $1 AND diskstatus = 0 AND obsoleted = 0
		 ORDER BY fk_books`, fileType)
}

func (s *PostgresStore) queryIDs(ctx context.Context, what, query string, args ...any) ([]int, error) {
	rows, err := s.pool.Query(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return ids, nil
}
