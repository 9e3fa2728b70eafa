package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the persisted queue and last queued version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, closeFn, err := a.loop(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer closeFn()

			state, err := loop.State(cmd.Context())
			if err != nil {
				return err
			}
			state.Pending = state.Pending.Sorted()

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}

			fmt.Fprintf(a.out, "%-14s %d\n", "LAST QUEUED", state.LastQueued)
			fmt.Fprintf(a.out, "%-14s %d\n", "PENDING", state.Pending.Len())
			for _, p := range state.Pending {
				fmt.Fprintf(a.out, "  %s\n", p.Name())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
