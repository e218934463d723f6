/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"themeforge/pkg/agent"
	agentruntime "themeforge/pkg/agent/runtime"
	"themeforge/pkg/draft"
	"themeforge/pkg/prompt"
	"themeforge/pkg/theme"
	chatui "themeforge/pkg/ui/chat"
)

var (
	promptText    string
	mentionIDs    []string
	imagePaths    []string
	attachCurrent bool
	outputJSON    bool
	outputPlain   bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Send one prompt and apply the generated theme",
	Long: `Sends a single prompt to the generation API and applies the result to the
editor theme. Mention presets inline with @id or with --mention; attach the
current editor theme with @current or --current.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := resolvePrompt(args)
		headless := outputJSON || outputPlain

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proc, err := setupProcess(ctx, "cmd.generate", !headless)
		if err != nil {
			return err
		}
		defer proc.cleanup()

		session, err := agentruntime.StartLocalSession(ctx, proc.cfg, proc.log, agentruntime.Options{EphemeralDraft: true})
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		data, err := buildPromptData(text, mentionIDs, attachCurrent, session.Resolver, session.Editor)
		if err != nil {
			return err
		}
		if len(imagePaths) > 0 {
			images, err := attachImages(ctx, cmd.ErrOrStderr(), session.Uploader, session.Images, imagePaths)
			if err != nil {
				return err
			}
			data.Images = images
		}

		if headless {
			return runHeadless(ctx, cmd.OutOrStdout(), session.Agent, session.Notices(), &data, outputJSON)
		}
		return chatui.RunOneShot(ctx, uiOptions(proc.cfg, session), data)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
	generateCmd.Flags().StringSliceVarP(&mentionIDs, "mention", "m", nil, "preset id to reference (repeatable; \"current\" is the editor theme)")
	generateCmd.Flags().StringSliceVarP(&imagePaths, "image", "i", nil, "image file to attach (repeatable)")
	generateCmd.Flags().BoolVar(&attachCurrent, "current", false, "reference the current editor theme")
	generateCmd.Flags().BoolVar(&outputJSON, "json", false, "print the assistant message as JSON instead of opening the UI")
	generateCmd.Flags().BoolVar(&outputPlain, "plain", false, "print the assistant reply as plain text instead of opening the UI")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

// buildPromptData parses inline @mentions in text, then adds the mentions
// named by flags. Unlike inline ones, a flag naming a missing preset is an
// error.
func buildPromptData(text string, ids []string, current bool, resolver prompt.Resolver, editor theme.Editor) (prompt.Data, error) {
	data := prompt.Extract(chatui.ParseInput(text, resolver), resolver)

	if len(ids) > 0 {
		normalized := make([]string, 0, len(ids))
		for _, id := range ids {
			id = strings.TrimPrefix(strings.TrimSpace(id), "@")
			if strings.EqualFold(id, "current") {
				id = prompt.CurrentThemeMentionID
			}
			normalized = append(normalized, id)
		}

		extra, err := prompt.FromMentions(data.Content, normalized, resolver)
		if err != nil {
			return prompt.Data{}, err
		}
		for _, m := range extra.Mentions {
			if !hasMention(data.Mentions, m.ID) {
				data.Mentions = append(data.Mentions, m)
			}
		}
	}

	if current && !prompt.MentionsCurrentTheme(data) {
		data = prompt.AttachCurrentTheme(data, editor)
	}
	return data, nil
}

func hasMention(mentions []prompt.Mention, id string) bool {
	for _, m := range mentions {
		if m.ID == id {
			return true
		}
	}
	return false
}

func attachImages(ctx context.Context, w io.Writer, uploader *draft.Uploader, images *draft.Images, paths []string) ([]prompt.Image, error) {
	result, err := uploader.Upload(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("attach images: %w", err)
	}
	for _, rejected := range result.Rejected {
		fmt.Fprintf(w, "skipped %s: %v\n", rejected.Path, rejected.Err)
	}
	if result.Truncated {
		fmt.Fprintln(w, "some images were not attached: attachment limit reached")
	}
	return images.Ready(), nil
}

type assistantOutput struct {
	Status  agent.Status        `json:"status"`
	Message *prompt.ChatMessage `json:"message,omitempty"`
	Notices []agent.Notice      `json:"notices,omitempty"`
}

// runHeadless generates without the UI and prints the outcome to w.
func runHeadless(ctx context.Context, w io.Writer, session chatui.Session, notices <-chan agent.Notice, data *prompt.Data, asJSON bool) error {
	outcome, err := session.Generate(ctx, data)
	collected := drainNotices(notices)

	if asJSON {
		if err != nil && !errors.Is(err, agent.ErrEmptyPrompt) && !errors.Is(err, agent.ErrPromptTooLong) {
			return err
		}
		if encodeErr := writeJSON(w, assistantOutput{Status: outcome.Status, Message: outcome.Message, Notices: collected}); encodeErr != nil {
			return encodeErr
		}
		return err
	}

	if err != nil {
		return err
	}
	if outcome.Message != nil {
		printAssistantMessage(w, outcome.Message.Content)
	}
	for _, n := range collected {
		if n.Level != agent.NoticeInfo {
			fmt.Fprintf(w, "%s: %s\n", n.Title, n.Message)
		}
	}
	if outcome.Status == agent.StatusFailed || outcome.Status == agent.StatusBlocked {
		return fmt.Errorf("theme generation %s", outcome.Status)
	}
	return nil
}

func drainNotices(ch <-chan agent.Notice) []agent.Notice {
	var out []agent.Notice
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, n)
		default:
			return out
		}
	}
}

func printAssistantMessage(w io.Writer, message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Fprintf(w, "🎨 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Fprintln(w)
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}
