package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"themeforge/pkg/gateway"
	"themeforge/pkg/provider"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Run the theme generation gateway",
	Long:    "Runs the HTTP generation endpoint the chat talks to, with health and readiness endpoints.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCtx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proc, err := setupProcess(runCtx, "cmd.serve", false)
		if err != nil {
			return err
		}
		defer proc.cleanup()
		log := proc.log
		cfg := proc.cfg

		client, err := provider.New(cfg)
		if err != nil {
			log.Error("Failed to initialize provider", "error", err)
			return err
		}

		srv, err := gateway.NewServer(cfg, client, log)
		if err != nil {
			log.Error("Failed to initialize gateway", "error", err)
			return err
		}

		log.Info("Gateway starting", "provider", cfg.Gateway.Provider, "model", cfg.Gateway.Model)
		if err := srv.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error("Gateway runtime failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
