package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/config"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/gateway/paypal"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/notify"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/provisioning/pterodactyl"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/storage/bolt"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/storage/postgres"
	"github.com/LORD-OBITO-DEV/Shop-panel/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

const startupTimeout = 5 * time.Second

// openStore opens the configured store and applies pending migrations for
// Postgres. The returned close func is always safe to call.
func openStore(ctx context.Context, cfg config.Config, logger *log.Logger) (app.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverBolt:
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open bolt store: %w", err)
		}
		logger.Printf("using bolt store path=%s", cfg.BoltPath)
		return store, func() { _ = store.Close() }, nil
	default:
		pool, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, func() {}, fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Printf("applied migrations %v", applied)
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

func newBackend(cfg config.Config, logger *log.Logger) (*pterodactyl.Client, *pterodactyl.Catalog, error) {
	catalog, err := pterodactyl.LoadCatalog(cfg.Ptero.Catalog)
	if err != nil {
		return nil, nil, err
	}
	client, err := pterodactyl.New(pterodactyl.Config{
		BaseURL:    cfg.Ptero.URL,
		APIKey:     cfg.Ptero.APIKey,
		LocationID: cfg.Ptero.LocationID,
	}, catalog, pterodactyl.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return client, catalog, nil
}

func newGateway(cfg config.Config, logger *log.Logger) (*paypal.Client, error) {
	return paypal.New(paypal.Config{
		ClientID:  cfg.PayPal.ClientID,
		Secret:    cfg.PayPal.Secret,
		Mode:      cfg.PayPal.Mode,
		ReturnURL: cfg.CaptureURL(),
		CancelURL: cfg.PublicBaseURL,
		BrandName: "Shop Panel",
	}, paypal.WithLogger(logger))
}

func newNotifier(cfg config.Config, logger *log.Logger) (app.Notifier, error) {
	if !cfg.SMTPEnabled() {
		logger.Printf("WARN: EMAIL_HOST not set, notifications go to the log")
		return notify.NewLog(logger), nil
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
}

func newReaper(cfg config.Config, store app.Store, backend app.ProvisioningBackend, notifier app.Notifier, logger *log.Logger, clk clock.Clock) *app.Reaper {
	return app.NewReaper(store, backend, notifier, clk,
		app.WithReaperLogger(logger),
		app.WithInterval(cfg.Reaper.Interval),
		app.WithReclaimTimeout(cfg.Reaper.ReclaimTimeout),
		app.WithReaperAdminEmail(cfg.Email.Admin),
	)
}
