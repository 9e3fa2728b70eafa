package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/me/evalzoo/internal/metrics"
	"github.com/me/evalzoo/internal/scheduler"
	"github.com/me/evalzoo/internal/server"
	"github.com/spf13/cobra"
)

func newZooLoopCmd(a *app) *cobra.Command {
	var (
		sgfDir      string
		maxJobs     int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "zoo-loop",
		Short: "Keep the cluster busy with evaluation matches",
		Long: "zoo-loop discovers new model versions, queues pairs for them, submits\n" +
			"matches while the cluster has room and deletes finished jobs. When the\n" +
			"queue runs dry and --sgf-dir is set, it refills from the ratings.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("sgf-dir") {
				abs, err := filepath.Abs(sgfDir)
				if err != nil {
					return err
				}
				a.cfg.EvalDir = abs
			}
			if flags.Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			a.cfg.CapMaxJobs(maxJobs)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if a.cfg.Bucket == "" {
				return errors.New("bucket is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			need := needSubmit | needCatalog
			if a.cfg.EvalDir != "" {
				need |= needRanking
			}
			m := metrics.New()
			loop, closeFn, err := a.loop(ctx, need, scheduler.WithMetrics(m))
			if err != nil {
				return err
			}
			defer closeFn()

			if a.cfg.MetricsAddr == "" {
				return ignoreCanceled(loop.Start(ctx))
			}

			// A status server that cannot serve ends the loop too.
			loopCtx, cancel := context.WithCancel(ctx)
			srvErr := make(chan error, 1)
			srv := server.New(loop, m, a.logger)
			go func() {
				err := srv.ListenAndServe(loopCtx, a.cfg.MetricsAddr)
				cancel()
				srvErr <- err
			}()

			loopErr := ignoreCanceled(loop.Start(loopCtx))
			cancel()
			if err := <-srvErr; err != nil {
				return errors.Join(loopErr, fmt.Errorf("status server: %w", err))
			}
			return loopErr
		},
	}

	cmd.Flags().StringVar(&sgfDir, "sgf-dir", "", "Directory of evaluation games used to refill the queue from ratings")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Cap concurrent matches; lowers max_tasks to max-jobs*completions*2")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve status and Prometheus metrics on this address")
	return cmd
}

// ignoreCanceled treats an interrupt as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
