package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"themeforge/pkg/prompt"
	"themeforge/pkg/storage"
)

const StorageKey = "ai-local-draft-storage"

type persisted struct {
	EditorContentDraft *prompt.Node   `json:"editorContentDraft"`
	ImagesDraft        []prompt.Image `json:"imagesDraft"`
}

// Store keeps the unsent prompt: the editor document and the images attached
// to it. Both survive restarts when a KV is configured.
type Store struct {
	kv  storage.KV
	log *slog.Logger

	mu       sync.RWMutex
	document *prompt.Node
	images   []prompt.Image
}

func Open(ctx context.Context, kv storage.KV) (*Store, error) {
	s := &Store{kv: kv, log: slog.Default().With("component", "draft")}
	if kv == nil {
		return s, nil
	}

	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return s, nil
	}

	var state persisted
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	s.document = state.EditorContentDraft
	s.images = state.ImagesDraft
	return s, nil
}

func (s *Store) SetDocument(ctx context.Context, doc prompt.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.document
	s.document = &doc
	if err := s.persistLocked(ctx); err != nil {
		s.document = previous
		return err
	}
	return nil
}

// Document returns the drafted editor document, or false when none is stored.
func (s *Store) Document() (prompt.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.document == nil {
		return prompt.Node{}, false
	}
	return *s.document, true
}

// PromptData flattens the drafted document. A missing draft reads as an empty
// document.
func (s *Store) PromptData(resolver prompt.Resolver) prompt.Data {
	doc, ok := s.Document()
	if !ok {
		doc = prompt.Node{Type: prompt.NodeDoc}
	}
	data := prompt.Extract(doc, resolver)
	data.Images = s.Images()
	return data
}

func (s *Store) SetImages(ctx context.Context, images []prompt.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.images
	s.images = append([]prompt.Image(nil), images...)
	if err := s.persistLocked(ctx); err != nil {
		s.images = previous
		return err
	}
	return nil
}

func (s *Store) Images() []prompt.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]prompt.Image(nil), s.images...)
}

// Clear drops the drafted document and images, typically after a submit.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevDoc, prevImages := s.document, s.images
	s.document, s.images = nil, nil
	if err := s.persistLocked(ctx); err != nil {
		s.document, s.images = prevDoc, prevImages
		return err
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	raw, err := json.Marshal(persisted{EditorContentDraft: s.document, ImagesDraft: s.images})
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.kv.Put(ctx, StorageKey, raw); err != nil {
		s.log.Error("Failed to persist draft", "error", err)
		return fmt.Errorf("persist draft: %w", err)
	}
	return nil
}
