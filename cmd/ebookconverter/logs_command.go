package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ebookconverter/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		lines  int
		runID  string
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log of the latest (or a given) conversion run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				runs, err := logs.RunLogs(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No run logs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{run.RunID, formatCount(int(run.Size)), run.Modified.Local().Format(time.DateTime)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Run", "Size", "Modified"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			}

			run, err := logs.Find(cfg.Paths.LogDir, runID)
			if errors.Is(err, logs.ErrNoRunLogs) {
				fmt.Fprintln(out, "No run logs")
				return nil
			}
			if err != nil {
				return err
			}

			offset := int64(-1)
			if lines <= 0 {
				offset = 0
			}
			limit := max(lines, 0)
			printed := false
			for {
				result, err := logs.Tail(cmd.Context(), run.Path, logs.TailOptions{
					Offset: offset,
					Limit:  limit,
					Follow: follow,
					Wait:   time.Second,
				})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("tail run log: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				offset = result.Offset
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Run id (or prefix) to show instead of the latest")
	cmd.Flags().BoolVar(&list, "list", false, "List run logs instead of showing one")
	return cmd
}
