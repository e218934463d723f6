package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"themeforge/pkg/agent"
	"themeforge/pkg/bus"
	"themeforge/pkg/chat"
	"themeforge/pkg/config"
	"themeforge/pkg/draft"
	"themeforge/pkg/generation"
	"themeforge/pkg/prompt"
	"themeforge/pkg/provider/httpapi"
	"themeforge/pkg/storage"
	"themeforge/pkg/theme"
)

const noticeBuffer = 16

// Backend is the remote side of a chat: the generation endpoint plus the
// session and plan checks the guards ask before each prompt.
// *httpapi.Client implements it.
type Backend interface {
	generation.Generator
	agent.SessionChecker
	agent.SubscriptionChecker
}

type Options struct {
	// Backend overrides the HTTP client built from cfg.Client.
	Backend Backend
	// EphemeralDraft keeps the unsent prompt in memory so a one-shot run
	// never touches the prompt saved by the interactive chat.
	EphemeralDraft bool
	ObserveEvents  bool
}

// LocalSession coordinates a single local chat session.
//
// It owns:
//   - the key-value store behind the chat log, the draft and the editor theme,
//   - one agent instance and its generation store,
//   - one in-process event bus,
//   - and the goroutines that observe events and tally outcomes.
type LocalSession struct {
	Agent    *agent.Instance
	Chat     *chat.Store
	Editor   *theme.State
	Presets  *theme.Registry
	Draft    *draft.Store
	Images   *draft.Images
	Uploader *draft.Uploader
	Resolver prompt.Resolver

	kv      storage.KV
	bus     *bus.Bus
	log     *slog.Logger
	tally   *Tally
	loading <-chan bool
	notices chan agent.Notice

	unsubscribeLoading func()
	cancelWorker       context.CancelFunc
	workerDone         chan struct{}
}

func StartLocalSession(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*LocalSession, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	backend := opts.Backend
	if backend == nil {
		client, err := httpapi.New(cfg.Client)
		if err != nil {
			return nil, fmt.Errorf("create api client: %w", err)
		}
		backend = client
	}

	kv, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	session, err := newLocalSession(ctx, cfg, log, kv, backend, opts)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return session, nil
}

func newLocalSession(ctx context.Context, cfg *config.Config, log *slog.Logger, kv storage.KV, backend Backend, opts Options) (*LocalSession, error) {
	chatStore, err := chat.Open(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}
	editor, err := theme.OpenState(ctx, kv)
	if err != nil {
		return nil, err
	}
	presets, err := theme.LoadRegistry(cfg.Presets.Path)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	var draftKV storage.KV = kv
	if opts.EphemeralDraft {
		draftKV = storage.NewMemory()
	}
	draftStore, err := draft.Open(ctx, draftKV)
	if err != nil {
		return nil, err
	}
	images := draft.NewImages(draftStore)

	generations := generation.NewStore(backend)
	loading, unsubscribeLoading := generations.Subscribe(8)

	s := &LocalSession{
		Chat:               chatStore,
		Editor:             editor,
		Presets:            presets,
		Draft:              draftStore,
		Images:             images,
		Uploader:           draft.NewUploader(draft.LimitsFromConfig(cfg.Limits), images),
		Resolver:           prompt.Resolver{Editor: editor, Presets: presets},
		kv:                 kv,
		bus:                bus.New(),
		log:                log.With("component", "agent.runtime"),
		tally:              &Tally{},
		loading:            loading,
		notices:            make(chan agent.Notice, noticeBuffer),
		unsubscribeLoading: unsubscribeLoading,
		workerDone:         make(chan struct{}),
	}

	notifier := agent.NotifierFunc(s.pushNotice)
	s.Agent = agent.New(agent.Options{
		Chat:       chatStore,
		Generation: generations,
		Editor:     editor,
		Bus:        s.bus,
		Notifier:   notifier,
		Guards: []agent.Guard{
			agent.SessionGuard(backend, notifier),
			agent.SubscriptionGuard(backend, notifier),
		},
		MaxPromptChars: cfg.Limits.PromptCharacters,
	})

	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWorker = cancelWorker
	events, unsubscribe := s.bus.SubscribeEvents(workerCtx, 32)
	go func() {
		defer close(s.workerDone)
		defer unsubscribe()
		s.tally.Consume(workerCtx, events)
	}()
	if opts.ObserveEvents {
		go agent.ObserveEvents(workerCtx, s.bus)
	}

	return s, nil
}

// Loading reports generation start and stop.
func (s *LocalSession) Loading() <-chan bool {
	return s.loading
}

// Notices carries transient messages for the UI. When nobody drains it,
// notices go to the log instead.
func (s *LocalSession) Notices() <-chan agent.Notice {
	return s.notices
}

func (s *LocalSession) Tally() Counts {
	return s.tally.Counts()
}

func (s *LocalSession) pushNotice(n agent.Notice) {
	select {
	case s.notices <- n:
	default:
		s.log.Info("Notice", "title", n.Title, "message", n.Message, "level", string(n.Level))
	}
}

// Close stops any running generation and releases the store.
func (s *LocalSession) Close() error {
	if s == nil {
		return nil
	}

	s.Agent.Cancel()
	s.unsubscribeLoading()
	s.bus.Close()
	s.cancelWorker()
	<-s.workerDone

	counts := s.tally.Counts()
	s.log.Debug("Session closed",
		"completed", counts.Completed,
		"failed", counts.Failed,
		"cancelled", counts.Cancelled,
		"superseded", counts.Superseded,
	)

	return s.kv.Close()
}
