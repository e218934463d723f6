package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agentruntime "themeforge/pkg/agent/runtime"
	"themeforge/pkg/config"
	chatui "themeforge/pkg/ui/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive theme chat",
	Long:  "Opens the chat UI. Mention presets with @id or the editor theme with @current; type /help for commands.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proc, err := setupProcess(ctx, "cmd.chat", true)
		if err != nil {
			return err
		}
		defer proc.cleanup()

		session, err := agentruntime.StartLocalSession(ctx, proc.cfg, proc.log, agentruntime.Options{ObserveEvents: true})
		if err != nil {
			proc.log.Error("Failed to start chat session", "error", err)
			return err
		}
		defer func() {
			if err := session.Close(); err != nil {
				proc.log.Warn("Failed to close chat session", "error", err)
			}
		}()

		return chatui.RunInteractive(ctx, uiOptions(proc.cfg, session))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func uiOptions(cfg *config.Config, session *agentruntime.LocalSession) chatui.Options {
	store := cfg.Storage.Driver
	if cfg.Storage.Path != "" {
		store += ":" + cfg.Storage.Path
	}
	return chatui.Options{
		Session:  session.Agent,
		Resolver: session.Resolver,
		Draft:    session.Draft,
		Images:   session.Images,
		Uploader: session.Uploader,
		Loading:  session.Loading(),
		Notices:  session.Notices(),
		Info: chatui.RuntimeInfo{
			Endpoint: cfg.Client.BaseURL,
			Store:    store,
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
