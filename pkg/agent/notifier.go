package agent

import (
	"log/slog"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing message that is not part of the chat log.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With("component", "agent.notice")}
}

func (n *LogNotifier) Notify(notice Notice) {
	attrs := []any{"title", notice.Title, "message", notice.Message}
	switch notice.Level {
	case NoticeError:
		n.log.Error("Notice", attrs...)
	case NoticeWarning:
		n.log.Warn("Notice", attrs...)
	default:
		n.log.Info("Notice", attrs...)
	}
}

func notify(n Notifier, notice Notice) {
	if n == nil {
		return
	}
	n.Notify(notice)
}
