package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ebookconverter/internal/candidates"
	"ebookconverter/internal/config"
	"ebookconverter/internal/fileutil"
	"ebookconverter/internal/logging"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/services"
)

// CandidateSource supplies the catalog candidates for an entry.
type CandidateSource interface {
	ListCandidates(ctx context.Context, entryID int) []candidates.Candidate
}

// Catalog is the catalog surface needed while planning.
type Catalog interface {
	IsNonText(ctx context.Context, entryID int) (bool, error)
	RemoveFile(ctx context.Context, path string) error
}

// Options controls one planning pass.
type Options struct {
	// Make is the expanded, build-ordered list of types to consider.
	Make []string
	// Build lists types rebuilt even when their artifact is current.
	Build map[string]struct{}
	// DryRun plans without touching the filesystem or catalog.
	DryRun bool
	// Shadow withholds catalog mutations.
	Shadow bool
}

// Forced reports whether typeName was explicitly requested for rebuild.
func (o Options) Forced(typeName string) bool {
	_, ok := o.Build[typeName]
	return ok
}

// Builder assembles engine jobs for catalog entries.
type Builder struct {
	cfg      *config.Config
	registry *outputtype.Registry
	source   CandidateSource
	catalog  Catalog
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg *config.Config, registry *outputtype.Registry, source CandidateSource, catalog Catalog, opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		registry: registry,
		source:   source,
		catalog:  catalog,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "jobqueue"),
		now:      time.Now,
	}
}

// entryState carries per-entry facts through one pass.
type entryState struct {
	id      int
	pool    *candidates.Pool
	nonText *bool
}

// BuildQueue plans the jobs for one entry. The only error returned is
// context cancellation; per-type failures become SkippedError outcomes.
func (b *Builder) BuildQueue(ctx context.Context, entryID int) (Plan, error) {
	ctx = services.WithEntryID(ctx, entryID)
	logger := b.logger.With(logging.Int(logging.FieldEntryID, entryID))

	all := b.source.ListCandidates(ctx, entryID)
	logger.Debug("candidates loaded", logging.Int("candidate_count", len(all)))

	state := &entryState{id: entryID, pool: candidates.NewPool(all)}
	plan := Plan{EntryID: entryID}
	for _, name := range b.opts.Make {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		typeLogger := logger.With(logging.String(logging.FieldOutputType, name))
		job, outcome := b.planType(ctx, state, name, typeLogger)
		plan.Outcomes = append(plan.Outcomes, outcome)
		if job != nil {
			plan.Jobs = append(plan.Jobs, *job)
		}
	}
	return plan, nil
}

func (b *Builder) planType(ctx context.Context, state *entryState, name string, logger *slog.Logger) (*Job, TypeOutcome) {
	outcome := TypeOutcome{Type: name}
	typ, err := b.registry.MustLookup(name)
	if err != nil {
		return nil, b.skip(logger, outcome, SkippedError, err.Error())
	}

	outputFile := typ.OutputFilename(state.id)
	job := Job{
		Type:       typ.Name,
		MainType:   outputtype.MainType(typ.Name),
		EntryID:    state.id,
		OutputDir:  b.cfg.EntryCacheDir(state.id),
		OutputFile: outputFile,
		LogFile:    outputtype.RenderFilename(outputtype.LogFilename, state.id),
	}
	pool := state.pool.Items()

	if len(typ.Exclusions) > 0 && candidates.Matches(typ.Exclusions, pool, candidates.CatalogFormatOf) {
		b.removeStale(ctx, state.id, outputFile, logger)
		return nil, b.skip(logger, outcome, SkippedExcluded, "format already published in the catalog")
	}

	var chosen *candidates.Candidate
	if typ.RequiresSource() {
		nonText, err := b.isNonText(ctx, state)
		if err != nil {
			return nil, b.skip(logger, outcome, SkippedError, err.Error())
		}
		if nonText {
			return nil, b.skip(logger, outcome, SkippedIneligible, "entry is not a text")
		}

		matches := candidates.FilterSort(typ.Inputs, pool, candidates.FormatOf)
		if len(matches) == 0 {
			b.removeStale(ctx, state.id, outputFile, logger)
			return nil, b.skip(logger, outcome, SkippedNoSource, "no input file found")
		}
		chosen = &matches[0]
		outcome.Source = chosen.Path

		if limit := b.cfg.MaxSourceBytes(typ.Category); chosen.Size > limit {
			logging.WarnWithContext(logger, "source too large; skipping output", "source_oversize",
				logging.String("source", chosen.Path),
				logging.Int64("source_size_bytes", chosen.Size),
				logging.Int64("limit_bytes", limit),
				logging.String(logging.FieldErrorHint, "raise conversion.max_source_mib for this category"),
			)
			outcome.Outcome = SkippedOversize
			outcome.Reason = "source exceeds size limit"
			return nil, outcome
		}

		sourcePath := b.sourcePath(*chosen)
		if !chosen.Generated {
			if _, err := os.Stat(sourcePath); err != nil {
				logging.WarnWithContext(logger, "expected source file not found; skipping output", "source_missing",
					logging.String("source", sourcePath),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "catalog and file tree disagree"),
				)
				outcome.Outcome = SkippedMissingSource
				outcome.Reason = "source file missing on disk"
				return nil, outcome
			}
		}

		job.URL = fileutil.FileURL(sourcePath)
		job.Include = []string{fileutil.FileURL(filepath.Dir(sourcePath)) + "/*"}
		job.MaxDepth = b.cfg.Conversion.MaxTraversalDepth
		job.Source = b.publicURL(state.id, *chosen)
		job.OPFIdentifier = b.cfg.URLs.BibRec + "/" + strconv.Itoa(state.id)
	}

	artifact := filepath.Join(job.OutputDir, job.OutputFile)
	build, reason, err := ShouldBuild(typ.RequiresSource(), artifact, chosen, b.opts.Forced(typ.Name))
	if err != nil {
		return nil, b.skip(logger, outcome, SkippedError, fmt.Sprintf("stat %s: %v", artifact, err))
	}
	if !build {
		return nil, b.skip(logger, outcome, SkippedUpToDate, reason)
	}

	logger.Info("output queued", logging.Args(append(logging.DecisionAttrs("build", "queued", reason),
		logging.String("output_file", job.OutputFile))...)...)
	state.pool.Prepend(candidates.Candidate{
		Path:      artifact,
		Format:    candidates.Format(typ.Name, ""),
		Modified:  b.now(),
		Generated: true,
	})
	outcome.Outcome = Queued
	outcome.Reason = reason
	return &job, outcome
}

func (b *Builder) skip(logger *slog.Logger, outcome TypeOutcome, kind Outcome, reason string) TypeOutcome {
	outcome.Outcome = kind
	outcome.Reason = reason
	level := slog.LevelInfo
	if kind == SkippedError {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "output skipped", logging.Args(logging.DecisionAttrs("build", string(kind), reason)...)...)
	return outcome
}

func (b *Builder) isNonText(ctx context.Context, state *entryState) (bool, error) {
	if state.nonText != nil {
		return *state.nonText, nil
	}
	nonText, err := b.catalog.IsNonText(ctx, state.id)
	if err != nil {
		return false, services.Wrap(services.ErrCatalog, "jobqueue", "is_not_text", "content kind lookup failed", err)
	}
	state.nonText = &nonText
	return nonText, nil
}

// sourcePath resolves a candidate to a local filesystem path.
func (b *Builder) sourcePath(c candidates.Candidate) string {
	if c.Generated || filepath.IsAbs(c.Path) {
		return c.Path
	}
	return filepath.Join(b.cfg.Paths.FilesDir, filepath.FromSlash(c.Path))
}

// publicURL is where readers can fetch the candidate from the site.
func (b *Builder) publicURL(entryID int, c candidates.Candidate) string {
	rel := c.Path
	if c.Generated {
		rel = b.cfg.ArtifactCatalogPath(entryID, filepath.Base(c.Path))
	}
	return b.cfg.URLs.Site + strings.TrimPrefix(rel, "/")
}

// removeStale deletes a previously built artifact that should no longer
// exist. Failures are logged and otherwise ignored.
func (b *Builder) removeStale(ctx context.Context, entryID int, filename string, logger *slog.Logger) {
	if b.opts.DryRun {
		return
	}
	diskPath := filepath.Join(b.cfg.EntryCacheDir(entryID), filename)
	removed, err := fileutil.RemoveWithSidecars(diskPath)
	for _, p := range removed {
		logger.Debug("removed stale artifact", logging.String("path", p))
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug("stale artifact removal failed", logging.String("path", diskPath), logging.Error(err))
	}

	catalogPath := b.cfg.ArtifactCatalogPath(entryID, filename)
	if b.opts.Shadow {
		logger.Debug("shadow mode; catalog record kept", logging.String("catalog_path", catalogPath))
		return
	}
	if err := b.catalog.RemoveFile(ctx, catalogPath); err != nil {
		logger.Debug("catalog record removal failed", logging.String("catalog_path", catalogPath), logging.Error(err))
		return
	}
	logger.Debug("removed catalog record", logging.String("catalog_path", catalogPath))
}
