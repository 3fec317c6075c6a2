package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ebookconverter/internal/preflight"
	"ebookconverter/internal/services"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

const statusLabelWidth = 20

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the engine, directories, catalog and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(names, ", ")+" failed", nil)
			}
			return nil
		},
	}
}

func renderStatusLine(r preflight.Result, colorize bool) string {
	label, color := "OK", ansiGreen
	switch {
	case !r.Passed && r.Optional:
		label, color = "WARN", ansiYellow
	case !r.Passed:
		label, color = "ERROR", ansiRed
	}
	line := fmt.Sprintf("  %-*s [%s] %s", statusLabelWidth, r.Name+":", label, r.Detail)
	if colorize {
		return color + line + ansiReset
	}
	return line
}
