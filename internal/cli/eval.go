package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/me/evalzoo/internal/cluster"
	"github.com/me/evalzoo/pkg/model"
	"github.com/spf13/cobra"
)

func newSameRunEvalCmd(a *app) *cobra.Command {
	var completions int

	cmd := &cobra.Command{
		Use:   "same-run-eval <black> <white>",
		Short: "Match two versions of the current run by number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pair model.Pair
			for i, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil || n <= 0 {
					return fmt.Errorf("need real model numbers, got %q", arg)
				}
				pair[i] = model.VersionID(n)
			}
			if cmd.Flags().Changed("completions") {
				a.cfg.Completions = completions
			}
			if a.cfg.ModelsDir == "" {
				return errors.New("models_dir is required")
			}

			loop, closeFn, err := a.loop(cmd.Context(), needSubmit|needCatalog)
			if err != nil {
				return err
			}
			defer closeFn()

			sub, err := loop.SubmitPair(cmd.Context(), pair)
			if err != nil {
				return err
			}
			return a.printSubmission(pair.Name(), sub)
		},
	}
	cmd.Flags().IntVar(&completions, "completions", 4, "Games per job")
	return cmd
}

func newLaunchEvalJobCmd(a *app) *cobra.Command {
	var (
		bucket      string
		completions int
	)

	cmd := &cobra.Command{
		Use:   "launch-eval-job <black-path> <white-path> <name>",
		Short: "Match two model files by path",
		Long: "launch-eval-job creates <name>-bw with the first model as black and\n" +
			"<name>-wb with the colours swapped.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("bucket") {
				a.cfg.Bucket = bucket
			}
			req := cluster.MatchRequest{
				Black:       args[0],
				White:       args[1],
				Name:        args[2],
				Bucket:      a.cfg.Bucket,
				Completions: completions,
			}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("provide all of black path, white path, name and bucket: %w", err)
			}

			loop, closeFn, err := a.loop(cmd.Context(), needSubmit)
			if err != nil {
				return err
			}
			defer closeFn()

			sub, err := loop.LaunchMatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printSubmission(req.Name, sub)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Where the games are written (default from config)")
	cmd.Flags().IntVar(&completions, "completions", 5, "Games per job")
	return cmd
}

func (a *app) printSubmission(name string, sub cluster.Submission) error {
	if sub.Outcome != cluster.OutcomeSubmitted {
		return fmt.Errorf("match %s not submitted (%s): %w", name, sub.Outcome, sub.Err)
	}
	fmt.Fprintf(a.out, "submitted %s: %s\n", name, strings.Join(sub.Jobs, " "))
	return nil
}
