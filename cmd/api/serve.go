package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/config"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/telemetry"
	transporthttp "github.com/LORD-OBITO-DEV/Shop-panel/internal/transport/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry reaper",
		Long: `Run the HTTP API and the expiry reaper.

Before accepting traffic, orders left paid or provisioning by a previous
process are recovered. Configuration is read from the environment and from
a .env file in the working directory or one of its parents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logger)
		},
	}
}

func runServe(ctx context.Context, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, Version, cfg.OTelURL)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Printf("WARN: tracing shutdown: %v", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	backend, catalog, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()
	orders := app.NewOrderService(store, gateway, backend, notifier, clk,
		app.WithLogger(logger),
		app.WithCurrency(cfg.Currency),
		app.WithAdminEmail(cfg.Email.Admin),
		app.WithPanelURL(cfg.Ptero.URL),
		app.WithResourceKinds(catalog.Names()...),
		app.WithMaxTermDays(cfg.MaxTermDays),
		app.WithProvisionTimeout(cfg.ProvisionTimeout),
		app.WithCaptureTimeout(cfg.CaptureTimeout),
	)
	reaper := newReaper(cfg, store, backend, notifier, logger, clk)
	admin := app.NewAdminService(store, reaper)

	if _, err := orders.Recover(ctx); err != nil {
		return err
	}

	if cfg.AdminToken == "" {
		logger.Printf("WARN: ADMIN_TOKEN not set, admin endpoints disabled")
	}
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: transporthttp.NewRouter(transporthttp.RouterConfig{
			Orders:      orders,
			Admin:       admin,
			AdminToken:  cfg.AdminToken,
			CORSOrigins: cfg.CORSOrigins,
			Clock:       clk,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(stopCtx)

	g.Go(func() error {
		logger.Printf("api listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server shutdown error: %v", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Printf("server stopped")
	return err
}
