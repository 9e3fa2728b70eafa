package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished evaluation jobs from the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, closeFn, err := a.loop(cmd.Context(), needCluster)
			if err != nil {
				return err
			}
			defer closeFn()

			deleted, err := loop.Cleanup(cmd.Context())
			for _, name := range deleted {
				fmt.Fprintln(a.out, name, "finished!")
			}
			return err
		},
	}
}
