package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	agentruntime "themeforge/pkg/agent/runtime"
	"themeforge/pkg/chat"
	"themeforge/pkg/prompt"
)

const historyPreviewWidth = 72

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or edit the chat history",
	Long:  "Lists the saved conversation. Messages are numbered from 1 in the order they were sent.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			messages := session.Chat.Messages()
			if historyJSON {
				return writeJSON(cmd.OutOrStdout(), messages)
			}
			printHistory(cmd.OutOrStdout(), messages)
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			if err := session.Agent.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		})
	},
}

var historyRewindCmd = &cobra.Command{
	Use:   "rewind N",
	Short: "Drop message N and everything after it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseMessageNumber(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			if err := session.Chat.ResetMessagesUpToIndex(ctx, index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kept %d message(s).\n", session.Chat.Len())
			return nil
		})
	},
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore N",
	Short: "Put the theme from assistant message N back into the editor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseMessageNumber(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			if err := session.Agent.RestoreCheckpoint(index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored the theme from message %d.\n", index+1)
			return nil
		})
	},
}

var historyRetryCmd = &cobra.Command{
	Use:   "retry N",
	Short: "Drop everything after user message N and send it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseMessageNumber(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, session *agentruntime.LocalSession) error {
			outcome, err := session.Agent.Retry(ctx, index)
			if err != nil {
				return err
			}
			if outcome.Message != nil {
				printAssistantMessage(cmd.OutOrStdout(), outcome.Message.Content)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyClearCmd, historyRewindCmd, historyRestoreCmd, historyRetryCmd)
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the raw messages as JSON")
}

// withSession runs fn against a local session that logs to stderr and keeps
// the saved draft untouched.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, session *agentruntime.LocalSession) error) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc, err := setupProcess(ctx, "cmd."+cmd.Name(), false)
	if err != nil {
		return err
	}
	defer proc.cleanup()

	session, err := agentruntime.StartLocalSession(ctx, proc.cfg, proc.log, agentruntime.Options{EphemeralDraft: true})
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	return fn(ctx, session)
}

func parseMessageNumber(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return 0, errors.New("message number must be a positive integer")
	}
	return n - 1, nil
}

func printHistory(w io.Writer, messages []prompt.ChatMessage) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for i, msg := range messages {
		fmt.Fprintln(w, historyLine(i, msg))
	}
	fmt.Fprintf(w, "\n%s in this chat.\n", plural(chat.UserMessageCount(messages), "prompt"))
}

func historyLine(index int, msg prompt.ChatMessage) string {
	stamp := ""
	if msg.Timestamp > 0 {
		stamp = time.UnixMilli(msg.Timestamp).Local().Format("Jan 02 15:04") + "  "
	}

	switch msg.Role {
	case prompt.RoleUser:
		text := ""
		var extras []string
		if msg.PromptData != nil {
			text = msg.PromptData.Content
			if n := len(msg.PromptData.Images); n > 0 {
				extras = append(extras, plural(n, "image"))
			}
		}
		line := fmt.Sprintf("#%-3d %syou  %s", index+1, stamp, preview(text))
		if len(extras) > 0 {
			line += " [" + strings.Join(extras, ", ") + "]"
		}
		return line
	default:
		line := fmt.Sprintf("#%-3d %sai   %s", index+1, stamp, preview(msg.Content))
		switch {
		case msg.IsError:
			line += " (error)"
		case msg.ThemeStyles != nil:
			line += " (checkpoint)"
		}
		return line
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= historyPreviewWidth {
		return text
	}
	return string(runes[:historyPreviewWidth-1]) + "…"
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
