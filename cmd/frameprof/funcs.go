package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/frameprof/funcid"
)

func newFuncsCmd() *cobra.Command {
	var profiledOnly bool

	cmd := &cobra.Command{
		Use:   "funcs",
		Short: "List intercepted commands and whether they are timed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			filter := funcid.DefaultFilter()
			for _, id := range funcid.All() {
				profiled := filter.ShouldProfile(id)
				if profiledOnly && !profiled {
					continue
				}
				mark := "-"
				if profiled {
					mark = "profiled"
				}
				if _, err := fmt.Fprintf(out, "%-28s %s\n", id, mark); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&profiledOnly, "profiled", false, "only list timed commands")
	return cmd
}
