package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/skirmish/internal/config"
	"github.com/mcoot/skirmish/internal/factory"
)

type serveFlags struct {
	tcpAddr   string
	udpAddr   string
	adminAddr string
	storage   string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := config.Load()
			if err != nil {
				return err
			}
			flags.apply(cmd, &serverCfg)
			if err := serverCfg.Validate(); err != nil {
				return err
			}

			level, _ := serverCfg.SlogLevel()
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(cmd.OutOrStdout(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			app, err := factory.New(serverCfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer func() { _ = app.Close() }()

			if err := app.Listen(); err != nil {
				return err
			}
			logger.Info("server started",
				slog.String("tcp", app.Server.Addr().String()),
				slog.String("admin", app.AdminServer.Addr()),
				slog.String("storage", serverCfg.StorageType),
				slog.Bool("crypto", serverCfg.CryptoEnabled))
			if app.ServerKey != nil {
				logger.Info("server public key", slog.String("public_key", app.ServerKey.PublicHex()))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Run(ctx); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.tcpAddr, "tcp-addr", "", "Game listener address (overrides SKIRMISH_TCP_ADDR)")
	cmd.Flags().StringVar(&flags.udpAddr, "udp-addr", "", "Battle transport address (overrides SKIRMISH_UDP_ADDR)")
	cmd.Flags().StringVar(&flags.adminAddr, "admin-addr", "", "Admin API address (overrides SKIRMISH_ADMIN_ADDR)")
	cmd.Flags().StringVar(&flags.storage, "storage", "", "Storage backend: memory, redis (overrides SKIRMISH_STORAGE)")

	return cmd
}

// apply copies explicitly set flags over the environment configuration
func (f serveFlags) apply(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("tcp-addr") {
		c.TCPAddr = f.tcpAddr
	}
	if cmd.Flags().Changed("udp-addr") {
		c.UDPAddr = f.udpAddr
	}
	if cmd.Flags().Changed("admin-addr") {
		c.AdminAddr = f.adminAddr
	}
	if cmd.Flags().Changed("storage") {
		c.StorageType = f.storage
	}
}
