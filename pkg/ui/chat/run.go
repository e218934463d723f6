package chat

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"themeforge/pkg/agent"
	"themeforge/pkg/draft"
	"themeforge/pkg/prompt"
)

// Session is the chat the UI drives. *agent.Instance implements it.
type Session interface {
	Generate(ctx context.Context, data *prompt.Data) (agent.Outcome, error)
	Retry(ctx context.Context, index int) (agent.Outcome, error)
	RestoreCheckpoint(index int) error
	Cancel() bool
	Loading() bool
	Messages() []prompt.ChatMessage
	Clear(ctx context.Context) error
}

// RuntimeInfo is shown in the header.
type RuntimeInfo struct {
	Endpoint string
	Store    string
}

// Options wires the UI to a session. Draft, Images and Uploader are optional;
// without them prompts are not persisted and /image is unavailable. Loading
// and Notices, when set, feed the status line.
type Options struct {
	Session  Session
	Resolver prompt.Resolver
	Draft    *draft.Store
	Images   *draft.Images
	Uploader *draft.Uploader
	Loading  <-chan bool
	Notices  <-chan agent.Notice
	Info     RuntimeInfo
}

func RunInteractive(ctx context.Context, opts Options) error {
	if opts.Session == nil {
		return errors.New("chat session is required")
	}

	program := tea.NewProgram(newModel(ctx, opts, modeInteractive, nil), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Println(renderGoodbyeBanner())
	return nil
}

// RunOneShot sends data and shows the answer, then exits.
func RunOneShot(ctx context.Context, opts Options, data prompt.Data) error {
	if opts.Session == nil {
		return errors.New("chat session is required")
	}

	final, err := tea.NewProgram(newModel(ctx, opts, modeOneShot, &data)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(*model); ok && m.lastErr != "" {
		return errors.New(m.lastErr)
	}
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("231")).
		Background(lipgloss.Color("55")).
		Padding(1, 2)

	return style.Render("🎨 Thanks for using ThemeForge")
}
