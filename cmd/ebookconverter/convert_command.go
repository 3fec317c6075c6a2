package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ebookconverter/internal/converter"
	"ebookconverter/internal/jobqueue"
	"ebookconverter/internal/logging"
	"ebookconverter/internal/notifications"
	"ebookconverter/internal/preflight"
	"ebookconverter/internal/services"
	"ebookconverter/internal/services/ebookmaker"
)

type convertFlags struct {
	make          []string
	build         []string
	rangeSpec     string
	goback        int
	top           int
	jobs          int
	fkFiletype    string
	dryRun        bool
	shadow        bool
	stop          bool
	validate      bool
	notify        bool
	pidfile       string
	verbose       int
	skipPreflight bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Build output formats for a selection of catalog entries",
		Example: `  ebookconverter convert --make all --range 1-100
  ebookconverter convert --build epub --goback 24 --jobs 10
  ebookconverter convert --make kindle --top 500 -n`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, ctx, flags)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&flags.make, "make", nil, "types to make if source newer than target (repeatable, comma separated)")
	f.StringArrayVar(&flags.build, "build", nil, "types to make unconditionally (repeatable, comma separated)")
	f.StringVar(&flags.rangeSpec, "range", "", "entry range to convert, e.g. 1,2-4,6,8-")
	f.IntVar(&flags.goback, "goback", 0, "convert only entries modified in the last HOURS hours")
	f.IntVar(&flags.top, "top", 0, "convert only the N most downloaded entries")
	f.IntVar(&flags.jobs, "jobs", 0, "entries per ebookmaker invocation (default from config)")
	f.StringVar(&flags.fkFiletype, "fk-filetype", "", "convert only entries that have a file of this type, e.g. rst")
	f.BoolVarP(&flags.dryRun, "dry-run", "n", false, "plan jobs and print them without running ebookmaker")
	f.BoolVar(&flags.shadow, "shadow", false, "run ebookmaker but leave the catalog untouched")
	f.BoolVar(&flags.stop, "stop", false, "stop on the first error")
	f.BoolVar(&flags.validate, "validate", false, "ask ebookmaker to validate its output")
	f.BoolVar(&flags.notify, "notify", false, "ask ebookmaker to send its own notifications")
	f.StringVar(&flags.pidfile, "pidfile", "", "lock file guarding against overlapping runs (default from config)")
	f.CountVarP(&flags.verbose, "verbose", "v", "increase verbosity (repeatable)")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "do not check the engine, directories and catalog first")

	return cmd
}

func runConvert(cmd *cobra.Command, cmdCtx *commandContext, flags convertFlags) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	registry, err := cmdCtx.ensureRegistry()
	if err != nil {
		return err
	}

	start := time.Now()
	runID := logging.RunID(start) + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	logger, err := cmdCtx.logger(flags.verbose, runID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("program start",
		logging.String(logging.FieldRunID, runID),
		logging.String("config_path", cmdCtx.configPath),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !flags.skipPreflight {
		if err := checkPreflight(ctx, cmdCtx, flags.dryRun, logger); err != nil {
			return err
		}
	}

	pidfile := strings.TrimSpace(flags.pidfile)
	if pidfile == "" {
		pidfile = cfg.Paths.PIDFile
	}
	lock, err := converter.AcquireLock(pidfile)
	if err != nil {
		logger.Info("not running; another run holds the lock", logging.String("pidfile", pidfile))
		return err
	}
	logger.Debug("run lock acquired", logging.String("pidfile", lock.Path()))
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release run lock", logging.String("pidfile", lock.Path()), logging.Error(err))
		}
	}()

	store, err := cmdCtx.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
	runner := ebookmaker.NewCLI(
		ebookmaker.WithBinary(cfg.Engine.Binary),
		ebookmaker.WithExtensionPackage(cfg.Engine.ExtensionPackage),
		ebookmaker.WithTimeout(timeout),
	)

	summary, runErr := converter.Run(ctx, cfg, converter.Deps{
		Catalog:  store,
		Registry: registry,
		Runner:   runner,
		Notifier: notifications.NewService(cfg),
	}, converter.Options{
		Selection: converter.Selection{
			Range:       flags.rangeSpec,
			GoBackHours: flags.goback,
			Top:         flags.top,
			FileType:    flags.fkFiletype,
		},
		Make:            flags.make,
		Build:           flags.build,
		EntriesPerBatch: flags.jobs,
		DryRun:          flags.dryRun,
		Shadow:          flags.shadow,
		Stop:            flags.stop,
		Engine: ebookmaker.RunOptions{
			Verbosity: flags.verbose,
			Validate:  flags.validate,
			Notify:    flags.notify,
		},
		RunID: runID,
	}, logger)

	if flags.dryRun {
		printPlans(cmd.OutOrStdout(), summary.Plans)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %s of %s entries, %s jobs, %s failed batches in %s\n",
		formatCount(summary.Processed), formatCount(len(summary.Selected)),
		formatCount(summary.Jobs), formatCount(summary.FailedBatches), summary.Duration)

	if pruned := logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays,
		logging.RunLogPath(cfg.Paths.LogDir, runID)); pruned > 0 {
		logger.Debug("pruned run logs", logging.Int("count", pruned))
	}
	logger.Info("program end")
	return runErr
}

func checkPreflight(ctx context.Context, cmdCtx *commandContext, dryRun bool, logger *slog.Logger) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	var details []string
	for _, r := range failed {
		if dryRun && r.Name == "ebookmaker" {
			continue
		}
		details = append(details, r.Name+": "+r.Detail)
	}
	if len(details) == 0 {
		logger.Warn("ebookmaker not found; dry run continues")
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(details, "; "), nil)
}

func printPlans(out io.Writer, plans []jobqueue.Plan) {
	rows := make([][]string, 0, len(plans))
	for _, plan := range plans {
		for _, outcome := range plan.Outcomes {
			rows = append(rows, []string{
				strconv.Itoa(plan.EntryID),
				outcome.Type,
				string(outcome.Outcome),
				outcome.Source,
				outcome.Reason,
			})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No entries planned")
		return
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Entry", "Type", "Outcome", "Source", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))

	var jobs [][]string
	for _, plan := range plans {
		for _, job := range plan.Jobs {
			jobs = append(jobs, []string{
				strconv.Itoa(job.EntryID),
				job.Type,
				filepath.Join(job.OutputDir, job.OutputFile),
				job.URL,
				strings.Join(job.Include, " "),
				strconv.Itoa(job.MaxDepth),
			})
		}
	}
	if len(jobs) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(out,
		[]string{"Entry", "Type", "Output", "URL", "Include", "Depth"},
		jobs,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}
