package converter

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ebookconverter/internal/logging"
	"ebookconverter/internal/selection"
	"ebookconverter/internal/services"
)

// EntryIndex is the catalog surface used to choose entries.
type EntryIndex interface {
	LastEntryID(ctx context.Context) (int, error)
	RecentEntries(ctx context.Context, since time.Time) ([]int, error)
	TopEntries(ctx context.Context, n int) ([]int, error)
	FiletypeEntries(ctx context.Context, fileType string) ([]int, error)
}

// Selection describes which entries a run covers.
type Selection struct {
	// Range is a comma list of ids and a-b ranges; open ends are allowed.
	Range string
	// GoBackHours replaces Range with entries modified in the last hours.
	GoBackHours int
	// Top keeps only the N most downloaded entries.
	Top int
	// FileType keeps only entries that have a file of this type.
	FileType string
}

func (s Selection) empty() bool {
	return strings.TrimSpace(s.Range) == "" && s.GoBackHours <= 0 && s.Top <= 0 && strings.TrimSpace(s.FileType) == ""
}

// SelectEntries resolves sel against the catalog. Recently modified entries
// come back newest id first so fresh postings are converted before backlog.
func SelectEntries(ctx context.Context, index EntryIndex, sel Selection, now time.Time, logger *slog.Logger) ([]int, error) {
	if sel.empty() {
		return nil, services.Wrap(services.ErrValidation, "select", "resolve entries",
			"no entries selected; use --range, --goback, --top or --fk-filetype", nil)
	}

	var ids []int
	restricted := false
	if spec := strings.TrimSpace(sel.Range); spec != "" {
		last, err := index.LastEntryID(ctx)
		if err != nil {
			return nil, services.Wrap(services.ErrCatalog, "select", "last entry", "", err)
		}
		var rangeErrs []error
		ids, rangeErrs = selection.ParseRange(spec, last)
		for _, rangeErr := range rangeErrs {
			logging.ErrorWithContext(logger, "error in range item", "range_item_invalid",
				logging.Error(rangeErr),
				logging.String(logging.FieldErrorHint, "use ids and a-b ranges separated by commas"),
			)
		}
		restricted = true
	}

	if sel.GoBackHours > 0 {
		since := now.Add(-time.Duration(sel.GoBackHours) * time.Hour)
		recent, err := index.RecentEntries(ctx, since)
		if err != nil {
			return nil, services.Wrap(services.ErrCatalog, "select", "recent entries", "", err)
		}
		ids = selection.SortedUnique(recent)
		restricted = true
	}

	if sel.Top > 0 {
		top, err := index.TopEntries(ctx, sel.Top)
		if err != nil {
			return nil, services.Wrap(services.ErrCatalog, "select", "top entries", "", err)
		}
		ids = narrow(ids, top, restricted)
		restricted = true
	}

	if fileType := strings.TrimSpace(sel.FileType); fileType != "" {
		having, err := index.FiletypeEntries(ctx, fileType)
		if err != nil {
			return nil, services.Wrap(services.ErrCatalog, "select", "filetype entries", fileType, err)
		}
		ids = narrow(ids, having, restricted)
	}

	if sel.GoBackHours > 0 {
		slices.Reverse(ids)
	}
	return ids, nil
}

func narrow(ids, allowed []int, restricted bool) []int {
	if !restricted {
		return selection.SortedUnique(allowed)
	}
	return selection.Intersect(selection.SortedUnique(ids), allowed)
}
