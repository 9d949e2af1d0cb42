package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asima2006/fiora-sync/internal/app"
	"github.com/asima2006/fiora-sync/internal/config"
	"github.com/asima2006/fiora-sync/internal/log"
)

func main() {
	var (
		configPath string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:   "fiora-sync",
		Short: "Headless chat synchronization engine",
		Long: "fiora-sync connects to a chat hub, keeps a local session in sync " +
			"(messages, unread counts, typing and receipts) and exposes a " +
			"read-only status API.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")
			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("hub", cfg.HubURL).Msg("starting fiora-sync")

			application, err := app.New(cfg, logger, nil, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("engine exited: %w", err)
			}
			logger.Info().Msg("engine stopped")
			return nil
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().StringVar(&overrides.HubURL, "hub-url", "", "hub websocket URL")
	root.Flags().StringVar(&overrides.DebugAddr, "debug-addr", "", "local status API address")
	root.Flags().StringVar(&overrides.TokenPath, "token-path", "", "path to the stored session token")
	root.Flags().StringVar(&overrides.CachePath, "cache-path", "", "path to the local message cache")
	root.Flags().StringVar(&overrides.LogLevel, "log-level", "", "debug, info, warn or error")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
