package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ebookconverter/internal/candidates"
	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/dispatch"
	"ebookconverter/internal/jobqueue"
	"ebookconverter/internal/logging"
	"ebookconverter/internal/notifications"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/selection"
	"ebookconverter/internal/services"
	"ebookconverter/internal/services/ebookmaker"
)

// Options configures one run.
type Options struct {
	Selection
	// Make and Build hold the type names as given; both are expanded.
	Make  []string
	Build []string
	// EntriesPerBatch overrides conversion.entries_per_batch when positive.
	EntriesPerBatch int
	DryRun          bool
	Shadow          bool
	// Stop aborts the run on the first entry or batch error.
	Stop   bool
	Engine ebookmaker.RunOptions
	RunID  string
}

// Deps are the collaborators a run needs.
type Deps struct {
	Catalog  catalog.Store
	Registry *outputtype.Registry
	Runner   ebookmaker.Runner
	Notifier notifications.Service
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Make     []string
	Build    []string
	Selected []int
	// Processed counts entries that were planned; Missing those absent from
	// the catalog.
	Processed     int
	Missing       int
	EntryErrors   int
	Jobs          int
	Batches       int
	FailedBatches int
	// Plans is filled on dry runs only.
	Plans    []jobqueue.Plan
	Duration time.Duration
}

// ResolveTypes expands make and build into build-ordered type lists. Build
// types are always part of the make list.
func ResolveTypes(registry *outputtype.Registry, makeNames, buildNames []string) ([]string, []string, error) {
	mk, err := registry.ParseNames(makeNames)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "types", "parse --make", "", err)
	}
	bd, err := registry.ParseNames(buildNames)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "types", "parse --build", "", err)
	}
	mk = append(mk, bd...)
	ordered := registry.ExpandOrdered(mk)
	if len(ordered) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "types", "resolve",
			"no output types requested; use --make or --build", nil)
	}
	return ordered, registry.ExpandOrdered(bd), nil
}

// Run executes a conversion run. The caller holds the run lock.
func Run(ctx context.Context, cfg *config.Config, deps Deps, opts Options, logger *slog.Logger) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: opts.RunID}
	if opts.RunID != "" {
		ctx = services.WithRunID(ctx, opts.RunID)
		logger = logging.NewComponentLogger(logger, "converter").With(logging.String(logging.FieldRunID, opts.RunID))
	} else {
		logger = logging.NewComponentLogger(logger, "converter")
	}

	makeTypes, buildTypes, err := ResolveTypes(deps.Registry, opts.Make, opts.Build)
	if err != nil {
		return summary, err
	}
	summary.Make, summary.Build = makeTypes, buildTypes

	ids, err := SelectEntries(ctx, deps.Catalog, opts.Selection, start, logger)
	if err != nil {
		return summary, err
	}
	summary.Selected = ids
	logger.Info("processing entries",
		logging.Int("entry_count", len(ids)),
		logging.String("entries", selection.Compact(ids)),
	)
	logger.Info("output types",
		logging.Any("making", makeTypes),
		logging.Any("building", buildTypes),
	)

	forced := make(map[string]struct{}, len(buildTypes))
	for _, name := range buildTypes {
		forced[name] = struct{}{}
	}
	repo := candidates.NewRepository(deps.Catalog, cfg.Conversion.LegacyIDThreshold, logger)
	builder := jobqueue.NewBuilder(cfg, deps.Registry, repo, deps.Catalog, jobqueue.Options{
		Make:   makeTypes,
		Build:  forced,
		DryRun: opts.DryRun,
		Shadow: opts.Shadow,
	}, logger)
	dispatcher := dispatch.New(cfg, deps.Runner, deps.Catalog, deps.Registry, deps.Notifier, dispatch.Options{
		Shadow: opts.Shadow,
		Engine: opts.Engine,
	}, logger)

	perBatch := opts.EntriesPerBatch
	if perBatch <= 0 {
		perBatch = cfg.Conversion.EntriesPerBatch
	}

	done := 0
	for index, batch := range selection.Batches(ids, perBatch) {
		if err := ctx.Err(); err != nil {
			return finish(summary, start), err
		}
		batchCtx := services.WithBatch(ctx, index)
		if len(ids) > 0 {
			logger.Info("progress", logging.Int("percent_done", done*100/len(ids)))
		}

		var jobs []jobqueue.Job
		for _, id := range batch {
			entryLogger := logger.With(logging.Int(logging.FieldEntryID, id))
			exists, err := deps.Catalog.EntryExists(batchCtx, id)
			if err != nil {
				summary.EntryErrors++
				logging.ErrorWithContext(entryLogger, "entry lookup failed", "entry_lookup_failed", logging.Error(err))
				if opts.Stop {
					return finish(summary, start), services.Wrap(services.ErrCatalog, "converter", "entry exists", fmt.Sprintf("entry %d", id), err)
				}
				continue
			}
			if !exists {
				summary.Missing++
				entryLogger.Debug("entry not in catalog; skipped")
				continue
			}

			plan, err := builder.BuildQueue(batchCtx, id)
			if err != nil {
				return finish(summary, start), err
			}
			done++
			summary.Processed++
			jobs = append(jobs, plan.Jobs...)
			if opts.DryRun {
				summary.Plans = append(summary.Plans, plan)
			}
			if failed := plan.Failed(); len(failed) > 0 {
				summary.EntryErrors++
				if opts.Stop {
					return finish(summary, start), fmt.Errorf("entry %d: %s: %s", id, failed[0].Type, failed[0].Reason)
				}
			}
		}

		first, last := batch[0], batch[len(batch)-1]
		if opts.DryRun {
			logger.Info("job list",
				logging.String(logging.FieldBatch, fmt.Sprintf("#%d - #%d", first, last)),
				logging.Int("job_count", len(jobs)),
			)
			summary.Jobs += len(jobs)
			continue
		}

		result, err := dispatcher.Dispatch(batchCtx, jobs)
		summary.Jobs += result.Jobs
		if !result.Skipped {
			summary.Batches++
		}
		if err != nil {
			summary.FailedBatches++
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(summary, start), ctxErr
			}
			if opts.Stop {
				return finish(summary, start), err
			}
		}
	}

	summary = finish(summary, start)
	logger.Info("run complete",
		logging.Int("processed", summary.Processed),
		logging.Int("missing", summary.Missing),
		logging.Int("job_count", summary.Jobs),
		logging.Int("failed_batches", summary.FailedBatches),
		logging.Duration("duration", summary.Duration),
	)
	if !opts.DryRun && deps.Notifier != nil {
		if err := deps.Notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
			"entries":       summary.Processed,
			"jobs":          summary.Jobs,
			"failedBatches": summary.FailedBatches,
			"duration":      summary.Duration,
		}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("notification failed", logging.Error(err))
		}
	}
	return summary, nil
}

func finish(summary Summary, start time.Time) Summary {
	summary.Duration = time.Since(start).Round(time.Millisecond)
	return summary
}
