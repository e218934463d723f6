package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"themeforge/pkg/storage"
)

const EditorStorageKey = "editor-storage"

// Editor is the theme currently being edited.
type Editor interface {
	Current() Styles
	Set(Styles)
}

// State is an in-memory Editor that optionally persists every Set to a KV store.
type State struct {
	mu     sync.RWMutex
	styles Styles
	kv     storage.KV
	log    *slog.Logger
}

// NewState starts from the given styles without persistence.
func NewState(initial Styles) *State {
	return &State{styles: initial.Clone(), log: slog.Default().With("component", "theme.editor")}
}

// OpenState restores the editor theme from kv, falling back to the defaults
// when nothing has been stored yet.
func OpenState(ctx context.Context, kv storage.KV) (*State, error) {
	s := NewState(Defaults())
	s.kv = kv

	if kv == nil {
		return s, nil
	}

	raw, ok, err := kv.Get(ctx, EditorStorageKey)
	if err != nil {
		return nil, fmt.Errorf("load editor theme: %w", err)
	}
	if !ok {
		return s, nil
	}

	var stored Styles
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode editor theme: %w", err)
	}
	s.styles = MergeWithDefaults(stored)
	return s, nil
}

func (s *State) Current() Styles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.styles.Clone()
}

func (s *State) Set(styles Styles) {
	s.mu.Lock()
	s.styles = styles.Clone()
	snapshot := s.styles.Clone()
	s.mu.Unlock()

	if s.kv == nil {
		return
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Error("Failed to encode editor theme", "error", err)
		return
	}
	if err := s.kv.Put(context.Background(), EditorStorageKey, raw); err != nil {
		s.log.Error("Failed to persist editor theme", "error", err)
	}
}
