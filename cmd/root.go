/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "themeforge",
	Short: "Generate editor themes by chatting with an AI",
	Long: `ThemeForge turns prompts like "make @sunset calmer" into complete light and
dark themes. Chat interactively, send one-shot prompts, manage the chat
history, or run the generation gateway the chat talks to.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
