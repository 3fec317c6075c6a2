package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ebookconverter/internal/candidates"
)

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates ID",
		Short: "Show the source candidates the catalog offers for an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(0, "")
			if err != nil {
				return err
			}
			store, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			repo := candidates.NewRepository(store, cfg.Conversion.LegacyIDThreshold, logger)
			list := repo.ListCandidates(cmd.Context(), id)
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "No candidates for entry %d\n", id)
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, c := range list {
				rows = append(rows, []string{c.Format, c.Path, formatCount(int(c.Size)), c.Modified.Local().Format(time.DateTime)})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Format", "Path", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}
