package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/stockroom/pkg/api"
	"github.com/cuemby/stockroom/pkg/events"
	"github.com/cuemby/stockroom/pkg/listener"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/metrics"
	"github.com/cuemby/stockroom/pkg/reconciler"
	"github.com/cuemby/stockroom/pkg/router"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stockroom HTTP API and background workers",
	Long: `Run the HTTP API together with the tenant handle sweeper, the event
bus and its listeners, the periodic index reconciler and the metrics
collector. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		logger := log.WithComponent("serve")

		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			metrics.RegisterComponent(metrics.ComponentGlobalStore, false, err.Error())
			return fmt.Errorf("failed to open stores: %w", err)
		}
		metrics.RegisterComponent(metrics.ComponentGlobalStore, true, "")
		metrics.RegisterComponent(metrics.ComponentRouter, true, "")

		a.router.Start()

		bus := events.NewBus(cfg.Events.Buffer, nil)
		dedup := events.NewDeduper(cfg.Events.DedupWindow, cfg.Events.DedupTTL, nil)
		listener.New(a.router, a.index, dedup, nil).Register(bus)
		bus.Start()
		metrics.RegisterComponent(metrics.ComponentEventBus, true, "")

		var recon *reconciler.Reconciler
		if cfg.Reconciler.Enabled {
			recon = reconciler.NewReconciler(a.index, a.global, cfg.Reconciler.Interval, nil)
			recon.Start()
		}

		collector := metrics.NewCollector(a.router, a.index, cfg.Metrics.CollectInterval)
		collector.Start()

		health := api.NewHealthServer()
		health.AddCheck(metrics.ComponentGlobalStore, func(ctx context.Context) error {
			_, err := a.global.ListTenants(ctx)
			return err
		})
		health.AddCheck(metrics.ComponentRouter, func(ctx context.Context) error {
			if a.router.Closed() {
				return router.ErrRouterClosed
			}
			return nil
		})

		server := api.NewServer(api.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}, a.machine, a.index, bus, health)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()
		metrics.RegisterComponent(metrics.ComponentAPI, true, "")

		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", cfg.Storage.Backend).
			Bool("reconciler", cfg.Reconciler.Enabled).
			Msg("Stockroom is running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var serveErr error
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		case serveErr = <-errCh:
			logger.Error().Err(serveErr).Msg("HTTP API stopped")
		}
		metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP API did not shut down cleanly")
		}
		bus.Stop()
		if recon != nil {
			recon.Stop()
		}
		collector.Stop()
		if err := a.Close(ctx); err != nil {
			return fmt.Errorf("failed to shutdown: %w", err)
		}

		logger.Info().Msg("Shutdown complete")
		return serveErr
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Address for the HTTP API (overrides server.addr)")
}
