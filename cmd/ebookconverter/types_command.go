package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTypesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List output types in build order",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.ensureRegistry()
			if err != nil {
				return err
			}
			var rows [][]string
			for _, name := range reg.BuildOrder() {
				typ, _ := reg.Lookup(name)
				filename := typ.Filename
				if typ.Generic() {
					filename = "(generic)"
				}
				rows = append(rows, []string{
					name,
					strings.Join(typ.Inputs, " "),
					filename,
					strings.Join(typ.Exclusions, " "),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Type", "Inputs", "Filename", "Exclusions"}, rows, nil))
			return nil
		},
	}
	cmd.AddCommand(newTypesExpandCommand(ctx))
	return cmd
}

func newTypesExpandCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "expand NAME...",
		Short: "Show the concrete types a list of names expands to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.ensureRegistry()
			if err != nil {
				return err
			}
			names, err := reg.ParseNames(args)
			if err != nil {
				return err
			}
			for _, name := range reg.ExpandOrdered(names) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
