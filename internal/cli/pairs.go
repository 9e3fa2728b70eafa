package cli

import (
	"context"
	"fmt"

	"github.com/me/evalzoo/internal/scheduler"
	"github.com/me/evalzoo/pkg/model"
	"github.com/spf13/cobra"
)

func newAddTopPairsCmd(a *app) *cobra.Command {
	return newAddPairsCmd(a, "add-top-pairs",
		"Queue matches among the top of the ratings table",
		"Each of the ten best versions plays the next four below it.",
		(*scheduler.Loop).AddTopPairs)
}

func newAddUncertainPairsCmd(a *app) *cobra.Command {
	return newAddPairsCmd(a, "add-uncertain-pairs",
		"Queue the matches the ratings are least sure about",
		"Versions older than 50 are ignored.",
		(*scheduler.Loop).AddUncertainPairs)
}

type addPairsFunc func(*scheduler.Loop, context.Context, bool) ([]model.Pair, error)

func newAddPairsCmd(a *app, use, short, long string, add addPairsFunc) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, closeFn, err := a.loop(cmd.Context(), needRanking)
			if err != nil {
				return err
			}
			defer closeFn()

			pairs, err := add(loop, cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			state, err := loop.State(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintln(a.out, p)
			}
			queued := state.Pending.Len()
			if dryRun {
				queued += len(pairs)
			}
			fmt.Fprintf(a.out, "adding %d new pairs, queue has %d pairs\n", len(pairs), queued)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the pairs without saving them")
	return cmd
}
