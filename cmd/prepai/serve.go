package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prepai/prepai/pkg/budget"
	"github.com/prepai/prepai/pkg/cache/memory"
	"github.com/prepai/prepai/pkg/config"
	"github.com/prepai/prepai/pkg/generate"
	"github.com/prepai/prepai/pkg/logging"
	"github.com/prepai/prepai/pkg/server"
	"github.com/prepai/prepai/pkg/tracker"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat assistant HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Format)

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			// One cache per process, shared by the chat pipeline and the admin endpoints.
			var cache *memory.Cache
			if cfg.Cache.Enabled {
				cache = memory.New(cfg.Cache.Capacity, cfg.Cache.TTL)
				log.Info().Int("capacity", cfg.Cache.Capacity).Dur("ttl", cfg.Cache.TTL).Msg("response cache enabled")
			}

			var enforcer *budget.Enforcer
			if cfg.Budget.Enabled {
				enforcer = budget.New(cfg.Budget.Policies, tr)
			}

			gen := generate.New(cfg, tr)
			srv := server.New(cfg, gen.Handle, cache, tr, enforcer)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("config", configPath).Int("providers", len(cfg.Providers)).Msg("starting prepai")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "prepai.yaml", "path to config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return cmd
}
