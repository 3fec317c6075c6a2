package candidates

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/logging"
)

// Lister is the slice of the catalog the repository reads.
type Lister interface {
	ListFiles(ctx context.Context, entryID int) ([]catalog.File, error)
}

// Repository loads and normalizes candidates from the catalog.
type Repository struct {
	files           Lister
	logger          *slog.Logger
	legacyThreshold int
	fold            cases.Caser
}

// NewRepository builds a repository. Entries with ids above legacyThreshold
// only accept html files named after the entry.
func NewRepository(files Lister, legacyThreshold int, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Repository{
		files:           files,
		logger:          logger,
		legacyThreshold: legacyThreshold,
		fold:            cases.Lower(language.Und),
	}
}

// ListCandidates returns the entry's candidates. Catalog errors are logged
// and produce an empty list.
func (r *Repository) ListCandidates(ctx context.Context, entryID int) []Candidate {
	files, err := r.files.ListFiles(ctx, entryID)
	if err != nil {
		logging.WarnWithContext(r.logger, "catalog lookup failed; treating entry as having no candidates", "candidate_lookup",
			logging.Int(logging.FieldEntryID, entryID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no source-based outputs will be built for this entry"),
		)
		return nil
	}

	idPrefix := strconv.Itoa(entryID)
	archiveDir := ArchiveDir(entryID)
	out := make([]Candidate, 0, len(files))
	for _, file := range files {
		fileType := r.fold.String(strings.TrimSpace(file.FileType))
		if fileType == "" {
			continue
		}
		if entryID > r.legacyThreshold && fileType == "html" && !strings.HasPrefix(path.Base(file.Path), idPrefix) {
			r.logger.Debug("skipping auxiliary html file",
				logging.Int(logging.FieldEntryID, entryID),
				logging.String("path", file.Path),
			)
			continue
		}
		out = append(out, Candidate{
			Path:     rewritePath(file.Path, archiveDir, entryID),
			Format:   Format(fileType, r.fold.String(strings.TrimSpace(file.Encoding))),
			Modified: file.Modified,
			Size:     file.Size,
		})
	}
	return out
}

// ArchiveDir returns the legacy archive directory of an entry: one path
// segment per leading digit followed by the full id ("4/5/5/4554"). Single
// digit ids live under "0".
func ArchiveDir(entryID int) string {
	id := strconv.Itoa(entryID)
	if len(id) == 1 {
		return "0/" + id
	}
	parts := make([]string, 0, len(id))
	for _, digit := range id[:len(id)-1] {
		parts = append(parts, string(digit))
	}
	parts = append(parts, id)
	return strings.Join(parts, "/")
}

func rewritePath(archivePath, archiveDir string, entryID int) string {
	switch {
	case strings.HasPrefix(archivePath, archiveDir):
		return "files/" + strconv.Itoa(entryID) + strings.TrimPrefix(archivePath, archiveDir)
	case strings.HasPrefix(archivePath, "etext"):
		return "dirs/" + archivePath
	default:
		return archivePath
	}
}
