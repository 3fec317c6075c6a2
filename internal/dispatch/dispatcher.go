package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/fileutil"
	"ebookconverter/internal/jobqueue"
	"ebookconverter/internal/logging"
	"ebookconverter/internal/notifications"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/selection"
	"ebookconverter/internal/services"
	"ebookconverter/internal/services/ebookmaker"
)

// Registrar records produced artifacts in the catalog.
type Registrar interface {
	RegisterFile(ctx context.Context, reg catalog.Registration) error
}

// TypeLookup resolves output type behaviour for verification.
type TypeLookup interface {
	Lookup(name string) (outputtype.Type, bool)
}

// JobOutcome classifies the post-build state of one job.
type JobOutcome string

const (
	OutcomeRegistered JobOutcome = "registered"
	OutcomeShadowed   JobOutcome = "shadowed"
	OutcomeStale      JobOutcome = "stale"
	OutcomeExempt     JobOutcome = "exempt"
	OutcomeMissing    JobOutcome = "missing"
	OutcomeError      JobOutcome = "error"
)

// JobResult is the verification result for one job.
type JobResult struct {
	Job     jobqueue.Job
	Path    string
	Outcome JobOutcome
	Err     error
}

// BatchResult summarizes one engine invocation.
type BatchResult struct {
	Jobs     int
	Entries  []int
	ExitCode int
	Failed   bool
	// Skipped is set when the batch had no jobs and the engine was not run.
	Skipped  bool
	Duration time.Duration
	Results  []JobResult
}

// Count returns how many jobs ended with outcome.
func (b BatchResult) Count(outcome JobOutcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Options controls dispatch behaviour.
type Options struct {
	Shadow bool
	Engine ebookmaker.RunOptions
}

// Dispatcher runs job batches through the engine.
type Dispatcher struct {
	cfg      *config.Config
	runner   ebookmaker.Runner
	catalog  Registrar
	types    TypeLookup
	notifier notifications.Service
	validate *validator.Validate
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Dispatcher. A nil notifier disables notifications.
func New(cfg *config.Config, runner ebookmaker.Runner, registrar Registrar, types TypeLookup, notifier notifications.Service, opts Options, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Dispatcher{
		cfg:      cfg,
		runner:   runner,
		catalog:  registrar,
		types:    types,
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
		now:      time.Now,
	}
}

// EncodePayload serializes a batch the way the engine reads it from stdin.
func EncodePayload(jobs []jobqueue.Job) ([]byte, error) {
	if jobs == nil {
		jobs = []jobqueue.Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode jobs: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks every job before the engine sees it.
func (d *Dispatcher) Validate(jobs []jobqueue.Job) error {
	for _, job := range jobs {
		if err := d.validate.Struct(job); err != nil {
			return services.Wrap(services.ErrValidation, "dispatch", "validate job",
				fmt.Sprintf("entry %d %s", job.EntryID, job.Type), err)
		}
	}
	return nil
}

// Dispatch runs one batch. An empty batch is skipped. The returned error is
// non-nil when the engine could not run or exited nonzero.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []jobqueue.Job) (BatchResult, error) {
	result := BatchResult{Jobs: len(jobs), Entries: entriesOf(jobs)}
	if len(jobs) == 0 {
		result.Skipped = true
		return result, nil
	}
	logger := d.logger.With(logging.String(logging.FieldBatch, selection.Compact(result.Entries)))

	if err := d.Validate(jobs); err != nil {
		result.Failed = true
		return result, err
	}
	for _, dir := range outputDirs(jobs) {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			result.Failed = true
			return result, services.Wrap(services.ErrConfiguration, "dispatch", "create output directory", dir, err)
		}
	}
	payload, err := EncodePayload(jobs)
	if err != nil {
		result.Failed = true
		return result, err
	}

	logger.Info("calling ebookmaker", logging.Int("job_count", len(jobs)))
	run, err := d.runner.Run(ctx, payload, d.opts.Engine)
	result.ExitCode = run.ExitCode
	result.Duration = run.Duration
	logger.Debug("ebookmaker output",
		logging.String("command", strings.Join(run.Args, " ")),
		logging.String("stdout", string(run.Stdout)),
		logging.String("stderr", string(run.Stderr)),
	)
	if err != nil {
		result.Failed = true
		logging.ErrorWithContext(logger, "ebookmaker did not complete", "engine_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the engine binary and its log files"),
		)
		d.notifyBatchFailed(ctx, result)
		return result, err
	}
	logger.Info("ebookmaker returned", logging.Int("exit_code", run.ExitCode), logging.Duration("duration", run.Duration))

	if !run.Succeeded() {
		result.Failed = true
		logging.Critical(ctx, logger, "ebookmaker returned nonzero exit code", "engine_exit",
			logging.Int("exit_code", run.ExitCode),
			logging.String(logging.FieldErrorHint, "see per-entry converter logs in the cache directory"),
		)
		d.notifyBatchFailed(ctx, result)
		return result, services.Wrap(services.ErrExternalTool, "dispatch", "run ebookmaker",
			fmt.Sprintf("exit code %d", run.ExitCode), nil)
	}

	for _, job := range jobs {
		result.Results = append(result.Results, d.verify(ctx, job, logger))
	}
	return result, nil
}

func (d *Dispatcher) verify(ctx context.Context, job jobqueue.Job, logger *slog.Logger) JobResult {
	path := filepath.Join(job.OutputDir, job.OutputFile)
	res := JobResult{Job: job, Path: path}
	logger = logger.With(
		logging.Int(logging.FieldEntryID, job.EntryID),
		logging.String(logging.FieldOutputType, job.Type),
	)
	ctx = services.WithOutputType(services.WithEntryID(ctx, job.EntryID), job.Type)

	typ, known := d.types.Lookup(job.Type)
	if known && typ.SkipRegistration {
		res.Outcome = OutcomeExempt
		return res
	}

	info, readable := fileutil.Readable(path)
	if !readable {
		if (known && typ.Generic()) || strings.HasSuffix(job.OutputFile, ".generic") {
			res.Outcome = OutcomeExempt
			return res
		}
		res.Outcome = OutcomeMissing
		logging.Critical(ctx, logger, "failed to build file", "verify_missing",
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "see "+job.LogFile+" in the entry cache directory"),
		)
		d.notifyVerification(ctx, path, "output missing after build")
		return res
	}

	res.Outcome = OutcomeRegistered
	if d.opts.Shadow {
		res.Outcome = OutcomeShadowed
		logger.Debug("shadow mode; catalog registration withheld", logging.String("path", path))
	} else {
		reg := catalog.Registration{
			EntryID:  job.EntryID,
			Path:     d.cfg.ArtifactCatalogPath(job.EntryID, job.OutputFile),
			FileType: job.Type,
			Size:     info.Size(),
			Modified: info.ModTime(),
		}
		if err := d.catalog.RegisterFile(ctx, reg); err != nil {
			res.Outcome = OutcomeError
			res.Err = err
			logging.ErrorWithContext(logger, "catalog registration failed", "register_failed",
				logging.String("catalog_path", reg.Path),
				logging.Error(err),
			)
		} else {
			logger.Debug("artifact registered", logging.String("catalog_path", reg.Path), logging.Int64("size_bytes", reg.Size))
		}
	}

	staleAfter := time.Duration(d.cfg.Conversion.StaleAfterHours) * time.Hour
	if age := d.now().Sub(info.ModTime()); age > staleAfter {
		if res.Outcome != OutcomeError {
			res.Outcome = OutcomeStale
		}
		logging.Critical(ctx, logger, "failed to build new file", "verify_stale",
			logging.String("path", path),
			logging.Duration("age", age.Round(time.Second)),
			logging.String(logging.FieldErrorHint, "the engine left an old artifact in place"),
		)
		d.notifyVerification(ctx, path, "artifact was not rebuilt")
	}

	removed, err := fileutil.RemoveSidecars(path, fileutil.CompressedSidecars...)
	for _, p := range removed {
		logger.Debug("removed compressed sidecar", logging.String("path", p))
	}
	if err != nil {
		logger.Debug("sidecar removal failed", logging.String("path", path), logging.Error(err))
	}
	return res
}

func (d *Dispatcher) notifyBatchFailed(ctx context.Context, result BatchResult) {
	if err := d.notifier.Publish(ctx, notifications.EventBatchFailed, notifications.Payload{
		"exitCode": result.ExitCode,
		"entries":  selection.Compact(result.Entries),
	}); err != nil {
		d.logger.Debug("notification failed", logging.Error(err))
	}
}

func (d *Dispatcher) notifyVerification(ctx context.Context, path, problem string) {
	if err := d.notifier.Publish(ctx, notifications.EventVerificationFailed, notifications.Payload{
		"file":    path,
		"problem": problem,
	}); err != nil {
		d.logger.Debug("notification failed", logging.Error(err))
	}
}

func entriesOf(jobs []jobqueue.Job) []int {
	var ids []int
	for _, job := range jobs {
		if !slices.Contains(ids, job.EntryID) {
			ids = append(ids, job.EntryID)
		}
	}
	return ids
}

func outputDirs(jobs []jobqueue.Job) []string {
	var dirs []string
	for _, job := range jobs {
		if !slices.Contains(dirs, job.OutputDir) {
			dirs = append(dirs, job.OutputDir)
		}
	}
	return dirs
}
