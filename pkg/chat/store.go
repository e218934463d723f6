package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"themeforge/pkg/prompt"
	"themeforge/pkg/storage"
	"themeforge/pkg/theme"
)

const (
	StorageKey = "ai-chat-storage"

	DefaultMessageID      = "default-message"
	DefaultMessageContent = "How can I help you theme?"
)

// ErrStaleReply means the prompt being answered is no longer the newest turn.
var ErrStaleReply = errors.New("reply target is no longer the latest message")

// AssistantMessage is the payload of an assistant turn.
type AssistantMessage struct {
	Content     string
	ThemeStyles *theme.Styles
	IsError     bool
}

type persisted struct {
	Messages []prompt.ChatMessage `json:"messages"`
}

// Store is the append-only conversation log. Messages are never edited in
// place; retry and edit truncate and append instead. Every mutation is
// written through to the KV store.
type Store struct {
	kv  storage.KV
	log *slog.Logger
	now func() time.Time

	mu       sync.RWMutex
	messages []prompt.ChatMessage
}

// Open loads the persisted log from kv. A nil kv keeps the log in memory.
func Open(ctx context.Context, kv storage.KV) (*Store, error) {
	s := &Store{
		kv:  kv,
		log: slog.Default().With("component", "chat.store"),
		now: time.Now,
	}
	if kv == nil {
		return s, nil
	}

	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load chat log: %w", err)
	}
	if !ok {
		return s, nil
	}

	var stored persisted
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode chat log: %w", err)
	}
	s.messages = stored.Messages
	s.log.Debug("Chat log restored", "messages", len(s.messages))
	return s, nil
}

// Messages returns a snapshot of the log in conversation order.
func (s *Store) Messages() []prompt.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) AddUserMessage(ctx context.Context, data prompt.Data) (prompt.ChatMessage, error) {
	promptData := data.Clone()
	return s.append(ctx, prompt.ChatMessage{
		Role:       prompt.RoleUser,
		PromptData: &promptData,
	})
}

func (s *Store) AddAssistantMessage(ctx context.Context, msg AssistantMessage) (prompt.ChatMessage, error) {
	return s.append(ctx, assistantEntry(msg))
}

func assistantEntry(msg AssistantMessage) prompt.ChatMessage {
	entry := prompt.ChatMessage{
		Role:    prompt.RoleAssistant,
		Content: msg.Content,
		IsError: msg.IsError,
	}
	if msg.ThemeStyles != nil {
		styles := msg.ThemeStyles.Clone()
		entry.ThemeStyles = &styles
	}
	return entry
}

// AddReply appends msg only while the user message promptID is still the last
// entry in the log. Otherwise nothing changes and ErrStaleReply is returned.
func (s *Store) AddReply(ctx context.Context, promptID string, msg AssistantMessage) (prompt.ChatMessage, error) {
	return s.appendIf(ctx, assistantEntry(msg), func(messages []prompt.ChatMessage) bool {
		return len(messages) > 0 && messages[len(messages)-1].ID == promptID
	})
}

func (s *Store) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.messages
	s.messages = nil
	if err := s.persistLocked(ctx); err != nil {
		s.messages = previous
		return err
	}
	return nil
}

// ResetMessagesUpToIndex keeps messages [0, index) and drops the rest. Indexes
// past the end keep everything; negative indexes clear the log.
func (s *Store) ResetMessagesUpToIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := max(0, min(index, len(s.messages)))
	if keep == len(s.messages) {
		return nil
	}

	previous := s.messages
	s.messages = append([]prompt.ChatMessage(nil), s.messages[:keep]...)
	if err := s.persistLocked(ctx); err != nil {
		s.messages = previous
		return err
	}
	return nil
}

func (s *Store) append(ctx context.Context, msg prompt.ChatMessage) (prompt.ChatMessage, error) {
	return s.appendIf(ctx, msg, nil)
}

// appendIf appends msg when ok, checked under the write lock, accepts the
// current log. A nil ok always appends.
func (s *Store) appendIf(ctx context.Context, msg prompt.ChatMessage, ok func([]prompt.ChatMessage) bool) (prompt.ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok != nil && !ok(s.messages) {
		return prompt.ChatMessage{}, ErrStaleReply
	}
	s.messages = append(s.messages, msg)
	if err := s.persistLocked(ctx); err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return prompt.ChatMessage{}, err
	}
	return msg.Clone(), nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	messages := s.messages
	if messages == nil {
		messages = []prompt.ChatMessage{}
	}
	raw, err := json.Marshal(persisted{Messages: messages})
	if err != nil {
		return fmt.Errorf("encode chat log: %w", err)
	}
	if err := s.kv.Put(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("persist chat log: %w", err)
	}
	return nil
}

func cloneMessages(messages []prompt.ChatMessage) []prompt.ChatMessage {
	out := make([]prompt.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
