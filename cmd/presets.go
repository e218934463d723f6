package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	agentruntime "themeforge/pkg/agent/runtime"
	"themeforge/pkg/theme"
)

var presetsCmd = &cobra.Command{
	Use:   "presets [id]",
	Short: "List theme presets or print one as JSON",
	Long:  "Lists the built-in presets plus those from presets.path. Mention any of them in a prompt as @id.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := setupProcess(commandContext(cmd), "cmd.presets", false)
		if err != nil {
			return err
		}
		defer proc.cleanup()

		registry, err := theme.LoadRegistry(proc.cfg.Presets.Path)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			preset, ok := registry.Preset(args[0])
			if !ok {
				return fmt.Errorf("preset %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), preset)
		}

		printPresets(cmd.OutOrStdout(), registry.List())
		return nil
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Print the current editor theme as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			return writeJSON(cmd.OutOrStdout(), session.Editor.Current())
		})
	},
}

var themeApplyCmd = &cobra.Command{
	Use:   "apply ID",
	Short: "Replace the editor theme with a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			preset, ok := session.Presets.Preset(args[0])
			if !ok {
				return fmt.Errorf("preset %q not found", args[0])
			}
			session.Editor.Set(theme.MergeWithDefaults(preset.Styles))
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s.\n", displayLabel(preset))
			return nil
		})
	},
}

var themeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the editor theme to the defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			session.Editor.Set(theme.Defaults())
			fmt.Fprintln(cmd.OutOrStdout(), "Editor theme reset.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd, themeCmd)
	themeCmd.AddCommand(themeApplyCmd, themeResetCmd)
}

func printPresets(w io.Writer, presets []theme.Preset) {
	if len(presets) == 0 {
		fmt.Fprintln(w, "No presets available.")
		return
	}

	width := 0
	for _, p := range presets {
		width = max(width, len(p.ID))
	}
	for _, p := range presets {
		fmt.Fprintf(w, "@%-*s  %s  %s\n", width, p.ID, displayLabel(p), swatch(p.Styles))
	}
}

func displayLabel(p theme.Preset) string {
	if strings.TrimSpace(p.Label) == "" {
		return p.ID
	}
	return p.Label
}

// swatch summarises the tokens a preset sets, e.g. "light: 12 · dark: 9".
func swatch(styles theme.Styles) string {
	parts := make([]string, 0, 2)
	for _, mode := range []string{theme.ModeLight, theme.ModeDark} {
		if n := len(styles.Mode(mode)); n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", mode, n))
		}
	}
	if len(parts) == 0 {
		return "(no tokens)"
	}
	return strings.Join(parts, " · ")
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
