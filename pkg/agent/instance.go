package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"themeforge/pkg/bus"
	"themeforge/pkg/chat"
	"themeforge/pkg/generation"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/theme"
)

const (
	DefaultAssistantText = "Here's the theme I generated for you."
	CancelledText        = "The theme generation was cancelled, no changes were made."
	GenericFailureText   = "Failed to generate theme. Please try again."
)

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = errors.New("prompt exceeds the character limit")
	ErrNotRetryable  = errors.New("message is not a user prompt")
	ErrNoCheckpoint  = errors.New("message has no theme checkpoint")
	ErrIndexOutRange = errors.New("message index out of range")
)

type Status string

const (
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusSuperseded Status = "superseded"
	StatusBlocked    Status = "blocked"
)

// Outcome describes how one Generate call ended. Message is the assistant
// message that was appended, if any.
type Outcome struct {
	Status  Status
	Message *prompt.ChatMessage
	Err     error
}

type Options struct {
	Chat       *chat.Store
	Generation *generation.Store
	Editor     theme.Editor
	Bus        *bus.Bus
	Notifier   Notifier
	Guards     []Guard
	// MaxPromptChars rejects longer prompts before anything is stored. Zero
	// disables the check.
	MaxPromptChars int
}

// Instance coordinates one chat session: it appends the user turn, runs the
// generation and records the outcome as an assistant turn.
type Instance struct {
	chat       *chat.Store
	generation *generation.Store
	editor     theme.Editor
	bus        *bus.Bus
	notifier   Notifier
	guards     []Guard
	maxChars   int
	log        *slog.Logger
}

func New(opts Options) *Instance {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &Instance{
		chat:       opts.Chat,
		generation: opts.Generation,
		editor:     opts.Editor,
		bus:        opts.Bus,
		notifier:   notifier,
		guards:     opts.Guards,
		maxChars:   opts.MaxPromptChars,
		log:        slog.Default().With("component", "agent"),
	}
}

// Generate submits a prompt. Empty or oversized prompts are rejected with a
// notice and leave the log untouched. Every other path that gets past the
// guards leaves an assistant message, except a generation that a newer one
// superseded.
func (i *Instance) Generate(ctx context.Context, data *prompt.Data) (Outcome, error) {
	if data == nil || prompt.IsEmpty(data, data.Images) {
		notify(i.notifier, Notice{Level: NoticeError, Title: "Error", Message: "Please enter a prompt or attach an image."})
		return Outcome{}, ErrEmptyPrompt
	}
	if i.maxChars > 0 && utf8.RuneCountInString(data.Content) > i.maxChars {
		notify(i.notifier, Notice{
			Level:   NoticeError,
			Title:   "Prompt too long",
			Message: fmt.Sprintf("Prompts are limited to %d characters.", i.maxChars),
		})
		return Outcome{}, ErrPromptTooLong
	}

	for _, guard := range i.guards {
		if !guard.Allow(ctx) {
			i.log.Debug("Generation blocked by guard")
			return Outcome{Status: StatusBlocked}, nil
		}
	}

	userMessage, err := i.chat.AddUserMessage(ctx, *data)
	if err != nil {
		return Outcome{}, err
	}
	messages := i.chat.Messages()

	i.publish(ctx, bus.Event{
		Type:      bus.EventGenerationStarted,
		RequestID: userMessage.ID,
		Payload: map[string]string{
			"messages": fmt.Sprint(len(messages)),
			"images":   fmt.Sprint(len(data.Images)),
			"mentions": fmt.Sprint(len(data.Mentions)),
		},
	})

	result, genErr := i.generation.Generate(ctx, messages)
	return i.settle(ctx, userMessage.ID, result, genErr)
}

// settle records the outcome of the generation answering requestID. Nothing is
// recorded once a newer turn follows that prompt in the log.
func (i *Instance) settle(ctx context.Context, requestID string, result providertypes.Result, genErr error) (Outcome, error) {
	// The chat log must still be written when the caller's context is gone.
	writeCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(genErr, generation.ErrSuperseded):
		i.publish(writeCtx, bus.Event{Type: bus.EventGenerationSuperseded, RequestID: requestID})
		return Outcome{Status: StatusSuperseded, Err: genErr}, nil

	case errors.Is(genErr, generation.ErrCancelled):
		msg, err := i.chat.AddReply(writeCtx, requestID, chat.AssistantMessage{Content: CancelledText, IsError: true})
		if errors.Is(err, chat.ErrStaleReply) {
			i.log.Debug("Dropping stale cancellation", "request_id", requestID)
			return Outcome{Status: StatusCancelled, Err: genErr}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		notify(i.notifier, Notice{Level: NoticeInfo, Title: "Theme generation cancelled", Message: CancelledText})
		i.publish(writeCtx, bus.Event{Type: bus.EventGenerationCancelled, RequestID: requestID, MessageID: msg.ID})
		return Outcome{Status: StatusCancelled, Message: &msg, Err: genErr}, nil

	case genErr != nil:
		text := GenericFailureText
		if apiErr, ok := providertypes.AsAPIError(genErr); ok {
			text = apiErr.Message
		} else {
			i.log.Error("Theme generation failed", "request_id", requestID, "error", genErr)
		}

		msg, err := i.chat.AddReply(writeCtx, requestID, chat.AssistantMessage{Content: text, IsError: true})
		if errors.Is(err, chat.ErrStaleReply) {
			i.log.Debug("Dropping stale failure", "request_id", requestID)
			return Outcome{Status: StatusFailed, Err: genErr}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		notify(i.notifier, Notice{Level: NoticeError, Title: "Error", Message: text})
		i.publish(writeCtx, bus.Event{
			Type:      bus.EventGenerationFailed,
			RequestID: requestID,
			MessageID: msg.ID,
			Error:     genErr.Error(),
			Payload:   map[string]string{"code": providertypes.CodeFromError(genErr)},
		})
		return Outcome{Status: StatusFailed, Message: &msg, Err: genErr}, nil
	}

	text := result.Text
	if text == "" {
		text = DefaultAssistantText
	}
	styles := result.Theme.Clone()
	msg, err := i.chat.AddReply(writeCtx, requestID, chat.AssistantMessage{Content: text, ThemeStyles: &styles})
	if errors.Is(err, chat.ErrStaleReply) {
		i.log.Debug("Dropping stale result", "request_id", requestID)
		return Outcome{Status: StatusSuperseded, Err: err}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if i.editor != nil {
		i.editor.Set(theme.MergeWithDefaults(result.Theme))
	}
	notify(i.notifier, Notice{Level: NoticeInfo, Title: "Theme generated", Message: "Your AI-generated theme has been applied."})
	i.publish(writeCtx, bus.Event{Type: bus.EventGenerationCompleted, RequestID: requestID, MessageID: msg.ID})
	return Outcome{Status: StatusCompleted, Message: &msg}, nil
}

// Retry rewinds the log to the user message at index and submits it again.
func (i *Instance) Retry(ctx context.Context, index int) (Outcome, error) {
	msg, err := i.userMessageAt(index)
	if err != nil {
		return Outcome{}, err
	}
	if err := i.chat.ResetMessagesUpToIndex(ctx, index); err != nil {
		return Outcome{}, err
	}
	return i.Generate(ctx, msg.PromptData)
}

// Edit replaces the user message at index with data, dropping everything
// after it, and submits the new prompt.
func (i *Instance) Edit(ctx context.Context, index int, data *prompt.Data) (Outcome, error) {
	if _, err := i.userMessageAt(index); err != nil {
		return Outcome{}, err
	}
	if data == nil || prompt.IsEmpty(data, data.Images) {
		notify(i.notifier, Notice{Level: NoticeError, Title: "Error", Message: "Please enter a prompt or attach an image."})
		return Outcome{}, ErrEmptyPrompt
	}
	if err := i.chat.ResetMessagesUpToIndex(ctx, index); err != nil {
		return Outcome{}, err
	}
	return i.Generate(ctx, data)
}

// RestoreCheckpoint puts the theme produced by the assistant message at index
// back into the editor.
func (i *Instance) RestoreCheckpoint(index int) error {
	messages := i.chat.Messages()
	if index < 0 || index >= len(messages) {
		return fmt.Errorf("%w: %d", ErrIndexOutRange, index)
	}
	msg := messages[index]
	if msg.Role != prompt.RoleAssistant || msg.ThemeStyles == nil {
		return ErrNoCheckpoint
	}
	if i.editor != nil {
		i.editor.Set(theme.MergeWithDefaults(*msg.ThemeStyles))
	}
	return nil
}

func (i *Instance) Cancel() bool {
	return i.generation.Cancel()
}

func (i *Instance) Loading() bool {
	return i.generation.Loading()
}

func (i *Instance) Messages() []prompt.ChatMessage {
	return i.chat.Messages()
}

func (i *Instance) Clear(ctx context.Context) error {
	return i.chat.ClearMessages(ctx)
}

func (i *Instance) userMessageAt(index int) (prompt.ChatMessage, error) {
	messages := i.chat.Messages()
	if index < 0 || index >= len(messages) {
		return prompt.ChatMessage{}, fmt.Errorf("%w: %d", ErrIndexOutRange, index)
	}
	msg := messages[index]
	if msg.Role != prompt.RoleUser || msg.PromptData == nil {
		return prompt.ChatMessage{}, ErrNotRetryable
	}
	return msg, nil
}

func (i *Instance) publish(ctx context.Context, event bus.Event) {
	if i.bus == nil {
		return
	}
	i.bus.PublishEvent(ctx, event)
}
