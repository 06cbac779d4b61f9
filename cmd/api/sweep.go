package main

import (
	"context"
	"log"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/config"
	"github.com/spf13/cobra"
)

func sweepCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim every expired panel once and exit",
		Long: `Reclaim every expired panel once and exit.

Panels left in reclaiming by an earlier failed delete are retried. Do not
run this while a serve process shares the same bolt file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), logger)
		},
	}
}

func runSweep(ctx context.Context, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	backend, _, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	report, err := newReaper(cfg, store, backend, notifier, logger, clock.NewSystem()).Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Printf("sweep scanned=%d reclaimed=%d failed=%d skipped=%d",
		report.Scanned, report.Reclaimed, report.Failed, report.Skipped)
	return nil
}
