package main

import (
	"context"
	"log"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/config"
	"github.com/LORD-OBITO-DEV/Shop-panel/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), logger)
		},
	}
}

func runMigrate(ctx context.Context, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	if cfg.StoreDriver == config.DriverBolt {
		logger.Printf("bolt store has no migrations")
		return nil
	}

	pool, err := connectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		return err
	}
	logger.Printf("migrations applied=%d %v", len(applied), applied)
	return nil
}
