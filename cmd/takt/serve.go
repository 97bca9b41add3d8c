package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/catalog"
	"github.com/taktline/takt/internal/clock"
	"github.com/taktline/takt/internal/config"
	"github.com/taktline/takt/internal/manager"
	"github.com/taktline/takt/internal/metrics"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/server"
	"github.com/taktline/takt/internal/store/factory"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the takt daemon",
		Long: `Start the takt daemon: the HTTP API, the reconciliation loop and the
journal sinks. All configuration is loaded from a TOML file.

Examples:
  takt serve config.toml
  takt serve --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required: use --config=config.toml or provide as argument")
			}
			return runServe(configPath)
		},
	}
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	lg := cfg.Log.NewSlogger()
	slog.SetDefault(lg)

	st, err := factory.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	sinks, err := cfg.Sinks()
	if err != nil {
		return fmt.Errorf("open journal sinks: %w", err)
	}

	roster, err := cfg.Roster()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	authSvc := auth.NewService(roster, auth.ServiceOptions{
		Secret:   cfg.Server.APISecret,
		TokenTTL: cfg.Server.TokenTTL,
	})

	clk := clock.Real{}
	mgr := manager.NewManager(st, sinks, clk)
	ledger := presence.NewLedger(st, sinks, clk)
	mgr.SetLedger(ledger)
	ledger.SetLifecycle(mgr)
	defer mgr.Shutdown()

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("restore processes: %w", err)
	}
	for _, spec := range cfg.Processes {
		if _, err := mgr.Status(ctx, spec.ID); err == nil {
			continue // already restored from the store
		}
		if _, err := mgr.Register(ctx, spec, "config"); err != nil {
			lg.Warn("failed to register configured process", "id", spec.ID, "error", err)
		}
	}

	cat := catalog.New()
	cat.SeedTexts(cfg.TextsByCategory())

	if cfg.Server.Metrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			lg.Warn("failed to register metrics", "error", err)
		}
	}

	if err := mgr.StartReconciler(cfg.Reconcile.Interval); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer mgr.StopReconciler()

	srv := server.NewServer(cfg.Server.Listen, server.Options{
		Manager:  mgr,
		Ledger:   ledger,
		Auth:     authSvc,
		Roster:   roster,
		Catalog:  cat,
		BasePath: cfg.Server.BasePath,
		Metrics:  cfg.Server.Metrics,
	})

	lg.Info("takt daemon started", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info("shutting down")
	return srv.Close()
}
