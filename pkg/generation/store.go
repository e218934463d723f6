package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
)

var (
	ErrMessagesRequired = errors.New("messages are required")
	// ErrCancelled means the user stopped the generation. Any result that
	// arrived afterwards was discarded.
	ErrCancelled = errors.New("theme generation cancelled")
	// ErrSuperseded means a newer generation replaced this one.
	ErrSuperseded = errors.New("theme generation superseded")
)

// Generator performs the network call for one generation.
type Generator interface {
	Generate(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error)
}

// Store owns the in-flight generation. At most one generation runs at a time;
// starting another cancels the current one. Each run gets an id, and only the
// run whose id is still active may clear the loading state when it settles.
type Store struct {
	generator Generator
	log       *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	active  uint64
	cancel  context.CancelCauseFunc
	loading bool

	subscribers map[uint64]chan bool
	nextSubID   uint64
}

func NewStore(generator Generator) *Store {
	return &Store{
		generator:   generator,
		log:         slog.Default().With("component", "generation"),
		subscribers: make(map[uint64]chan bool),
	}
}

// Generate runs one generation for messages. It returns ErrSuperseded when a
// newer Generate replaced it and ErrCancelled when Cancel was called, in both
// cases as soon as that happens and regardless of what the network call
// returns.
func (s *Store) Generate(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error) {
	if len(messages) == 0 {
		return providertypes.Result{}, ErrMessagesRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.cancel != nil {
		s.log.Debug("Preempting in-flight generation", "generation_id", s.active)
		s.cancel(ErrSuperseded)
	}
	s.nextID++
	id := s.nextID
	s.active = id
	s.cancel = cancel
	s.setLoadingLocked(true)
	s.mu.Unlock()

	s.log.Debug("Generation started", "generation_id", id, "messages", len(messages))
	result, err := s.run(runCtx, messages)

	s.mu.Lock()
	if s.active == id {
		s.active = 0
		s.cancel = nil
		s.setLoadingLocked(false)
	}
	s.mu.Unlock()

	switch cause := context.Cause(runCtx); {
	case errors.Is(cause, ErrSuperseded):
		s.log.Debug("Discarding superseded generation", "generation_id", id)
		return providertypes.Result{}, ErrSuperseded
	case errors.Is(cause, ErrCancelled):
		s.log.Debug("Discarding cancelled generation", "generation_id", id)
		return providertypes.Result{}, ErrCancelled
	}

	if err != nil {
		if ctx.Err() != nil {
			return providertypes.Result{}, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return providertypes.Result{}, err
	}

	s.log.Debug("Generation completed", "generation_id", id)
	return result, nil
}

type reply struct {
	result providertypes.Result
	err    error
}

// run returns as soon as ctx ends, even when the generator ignores ctx. A
// result that arrives later is dropped.
func (s *Store) run(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error) {
	done := make(chan reply, 1)
	go func() {
		result, err := s.generator.Generate(ctx, messages)
		done <- reply{result: result, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return providertypes.Result{}, ctx.Err()
	}
}

// Cancel stops the in-flight generation, if any. Loading is cleared before
// Cancel returns; the network call unwinds on its own.
func (s *Store) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}

	s.log.Debug("Cancelling generation", "generation_id", s.active)
	s.cancel(ErrCancelled)
	s.cancel = nil
	s.active = 0
	s.setLoadingLocked(false)
	return true
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe streams loading changes. Slow subscribers miss intermediate
// values; call the returned func to stop.
func (s *Store) Subscribe(buffer int) (<-chan bool, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan bool, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) setLoadingLocked(loading bool) {
	if s.loading == loading {
		return
	}
	s.loading = loading

	for _, ch := range s.subscribers {
		select {
		case ch <- loading:
		default:
		}
	}
}
