package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/dashboard"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/store"
)

// ServeConfig holds the options of the serve command
type ServeConfig struct {
	Addr string
}

// NewServeConfig creates a ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{}
}

func newServeCmd() *cobra.Command {
	defaults := NewServeConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the results dashboard API",
		Long: `Start a local HTTP server that exposes the analysis reports, the per-level
chain outputs and the run history as JSON. Reports are re-read when the files in
the results directory change.

The server listens on 127.0.0.1:8501 by default.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, getServeConfigFromFlags(cmd, cfg))
		},
	}
	cmd.Flags().String("addr", defaults.Addr, "Address to listen on (default: dashboard.addr)")
	return cmd
}

func getServeConfigFromFlags(cmd *cobra.Command, cfg *config.Config) *ServeConfig {
	sc := NewServeConfig()
	sc.Addr = cfg.Dashboard.Addr
	if addr, err := cmd.Flags().GetString("addr"); err == nil && addr != "" {
		sc.Addr = addr
	}
	return sc
}

func runServe(ctx context.Context, cfg *config.Config, sc *ServeConfig) error {
	log := logger.G(ctx)

	var runs dashboard.RunStore
	if _, err := os.Stat(cfg.Paths.Database); err == nil {
		st, err := store.Open(ctx, cfg.Paths.Database)
		if err != nil {
			return err
		}
		defer st.Close()
		runs = st
	} else {
		log.WithField("path", cfg.Paths.Database).Info("no run history database, run endpoints disabled")
	}

	server, err := dashboard.NewServer(dashboard.ServerConfig{
		Addr:       sc.Addr,
		ResultsDir: cfg.Paths.Results,
		OutputsDir: cfg.Paths.Outputs,
		Currency:   cfg.CostTracking.Currency,
	}, runs)
	if err != nil {
		return err
	}

	log.WithField("addr", sc.Addr).Info("starting dashboard server")
	presenter.Success(fmt.Sprintf("Dashboard API listening on http://%s", sc.Addr))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := server.Start(ctx); err != nil {
		return err
	}
	presenter.Info("Dashboard server stopped")
	return nil
}
