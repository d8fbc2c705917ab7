package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mediaprep/internal/ledger"
	"mediaprep/internal/metrics"
	"mediaprep/internal/watch"
	"mediaprep/internal/workflow"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Encode on start and whenever the source tree changes",
		Long: "Run a batch immediately, then watch source_dir and run another batch\n" +
			"after each burst of changes. With metrics.bind set, Prometheus metrics\n" +
			"are served on /metrics. Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			return ctx.withLedger(func(store *ledger.Store) error {
				m := metrics.New()
				opts := append([]workflow.Option{workflow.WithLedger(store), workflow.WithMetrics(m)}, runnerOptions...)
				runner := workflow.New(cfg, logger, opts...)
				watcher := watch.New(cfg, runner, logger)

				g, gctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error {
					return metrics.Serve(gctx, cfg.Metrics.Bind, m, logger)
				})
				g.Go(func() error {
					return watcher.Run(gctx)
				})
				return g.Wait()
			})
		},
	}
}
