package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/PanelGoat/internal/api"
	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/observability"
	"github.com/IshaanNene/PanelGoat/internal/refresh"
	"github.com/IshaanNene/PanelGoat/internal/snapshot"
	"github.com/IshaanNene/PanelGoat/internal/storage"
)

var (
	servePort     int
	noScheduler   bool
	refreshOnBoot bool
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and refresh on a schedule",
		Long: `Start the HTTP API:

  GET  /total_accounts
  GET  /premium_subscribers?start=YYYY-MM-DD&end=YYYY-MM-DD
  POST /refresh
  GET  /health

and, unless disabled, a scheduler that refreshes the snapshot every
scheduler.interval (default 6h).`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config, 8000)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "disable the periodic refresh")
	cmd.Flags().BoolVar(&refreshOnBoot, "refresh-on-start", false, "run one refresh immediately")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if noScheduler {
		cfg.Scheduler.Enabled = false
	}
	if refreshOnBoot {
		cfg.Scheduler.RunOnStart = true
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	metrics := observability.NewMetrics(logger)

	drv, err := browser.NewDriver(&cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("create browser driver: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	builder := snapshot.NewBuilder(cfg, drv, logger, snapshot.WithMetrics(metrics))
	pipe := refresh.NewPipeline(builder, store, cfg.Site.URL, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(cfg, store, pipe, metrics, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	var sched *refresh.Scheduler
	if cfg.Scheduler.Enabled {
		sched = refresh.NewScheduler(pipe, cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		logger.Info("next scheduled refresh", "at", sched.Next())
	}

	logger.Info("panelgoat serving",
		"site", cfg.Site.URL,
		"driver", drv.Name(),
		"storage", store.Name(),
		"port", cfg.API.Port,
		"scheduler", cfg.Scheduler.Enabled,
	)

	<-ctx.Done()
	logger.Info("received signal, shutting down...")

	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown incomplete", "error", err)
	}
	return nil
}
