package runtime

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"themeforge/pkg/agent"
	"themeforge/pkg/bus"
	"themeforge/pkg/config"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/theme"
)

type fakeBackend struct {
	mu sync.Mutex

	result       providertypes.Result
	err          error
	signedIn     bool
	subscription providertypes.SubscriptionStatus
	calls        int
}

func (f *fakeBackend) Generate(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeBackend) CheckSession(ctx context.Context) (bool, error) {
	return f.signedIn, nil
}

func (f *fakeBackend) SubscriptionStatus(ctx context.Context) (providertypes.SubscriptionStatus, error) {
	return f.subscription, nil
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		signedIn:     true,
		subscription: providertypes.SubscriptionStatus{IsSubscribed: true},
		result: providertypes.Result{
			Text:  "Warmer now.",
			Theme: theme.Styles{Light: theme.StyleMap{"primary": "#f97316"}, Dark: theme.StyleMap{}},
		},
	}
}

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "store.json")}
	return cfg
}

func startSession(t *testing.T, cfg *config.Config, backend Backend, opts Options) *LocalSession {
	t.Helper()
	opts.Backend = backend
	session, err := StartLocalSession(context.Background(), cfg, slog.Default(), opts)
	if err != nil {
		t.Fatalf("StartLocalSession error: %v", err)
	}
	return session
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLocalSessionGeneratesAndAppliesTheme(t *testing.T) {
	cfg := fileConfig(t)
	backend := newBackend()
	session := startSession(t, cfg, backend, Options{})
	defer func() { _ = session.Close() }()

	data, err := prompt.FromPreset("Warmer please", "sunset", session.Resolver)
	if err != nil {
		t.Fatalf("FromPreset error: %v", err)
	}

	outcome, err := session.Agent.Generate(context.Background(), &data)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if outcome.Status != agent.StatusCompleted {
		t.Fatalf("status = %q, want %q", outcome.Status, agent.StatusCompleted)
	}
	if got := session.Editor.Current().Light["primary"]; got != "#f97316" {
		t.Fatalf("editor primary = %q, want %q", got, "#f97316")
	}
	if got := len(session.Chat.Messages()); got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}

	select {
	case notice := <-session.Notices():
		if notice.Title != "Theme generated" {
			t.Fatalf("notice title = %q", notice.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a notice")
	}

	waitFor(t, func() bool { return session.Tally().Completed == 1 })
	if got := session.Tally().Started; got != 1 {
		t.Fatalf("started = %d, want 1", got)
	}
}

func TestLocalSessionLoadingChannel(t *testing.T) {
	session := startSession(t, fileConfig(t), newBackend(), Options{})
	defer func() { _ = session.Close() }()

	data := prompt.Data{Content: "Make it blue"}
	if _, err := session.Agent.Generate(context.Background(), &data); err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	var seen []bool
	waitFor(t, func() bool {
		select {
		case v := <-session.Loading():
			seen = append(seen, v)
		default:
		}
		return len(seen) >= 2
	})
	if !seen[0] || seen[1] {
		t.Fatalf("loading transitions = %v, want [true false]", seen)
	}
}

func TestLocalSessionGuardBlocksWithoutSession(t *testing.T) {
	backend := newBackend()
	backend.signedIn = false
	session := startSession(t, fileConfig(t), backend, Options{})
	defer func() { _ = session.Close() }()

	data := prompt.Data{Content: "Make it blue"}
	outcome, err := session.Agent.Generate(context.Background(), &data)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if outcome.Status != agent.StatusBlocked {
		t.Fatalf("status = %q, want %q", outcome.Status, agent.StatusBlocked)
	}
	if backend.calls != 0 {
		t.Fatalf("backend calls = %d, want 0", backend.calls)
	}
	notice := <-session.Notices()
	if notice.Title != "Sign in required" {
		t.Fatalf("notice title = %q", notice.Title)
	}
}

func TestLocalSessionPersistsAcrossRestarts(t *testing.T) {
	cfg := fileConfig(t)

	first := startSession(t, cfg, newBackend(), Options{})
	data := prompt.Data{Content: "Make it orange"}
	if _, err := first.Agent.Generate(context.Background(), &data); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	second := startSession(t, cfg, newBackend(), Options{})
	defer func() { _ = second.Close() }()
	if got := len(second.Chat.Messages()); got != 2 {
		t.Fatalf("messages after restart = %d, want 2", got)
	}
	if got := second.Editor.Current().Light["primary"]; got != "#f97316" {
		t.Fatalf("editor primary after restart = %q", got)
	}
}

func TestEphemeralDraftLeavesSavedDraftAlone(t *testing.T) {
	cfg := fileConfig(t)
	saved := prompt.Node{Type: prompt.NodeDoc, Content: []prompt.Node{{
		Type:    prompt.NodeParagraph,
		Content: []prompt.Node{{Type: prompt.NodeText, Text: "half-typed idea"}},
	}}}

	interactive := startSession(t, cfg, newBackend(), Options{})
	if err := interactive.Draft.SetDocument(context.Background(), saved); err != nil {
		t.Fatalf("SetDocument error: %v", err)
	}
	if err := interactive.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	oneShot := startSession(t, cfg, newBackend(), Options{EphemeralDraft: true})
	if _, ok := oneShot.Draft.Document(); ok {
		t.Fatal("ephemeral draft should start empty")
	}
	if err := oneShot.Draft.Clear(context.Background()); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if err := oneShot.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened := startSession(t, cfg, newBackend(), Options{})
	defer func() { _ = reopened.Close() }()
	if got := reopened.Draft.PromptData(reopened.Resolver).Content; got != "half-typed idea" {
		t.Fatalf("saved draft = %q, want %q", got, "half-typed idea")
	}
}

func TestStartLocalSessionRequiresConfig(t *testing.T) {
	if _, err := StartLocalSession(context.Background(), nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestStartLocalSessionRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "cassette"
	if _, err := StartLocalSession(context.Background(), cfg, nil, Options{Backend: newBackend()}); err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestTallyCountsOutcomes(t *testing.T) {
	var tally Tally
	tally.Record(bus.Event{Type: bus.EventGenerationStarted})
	tally.Record(bus.Event{Type: bus.EventGenerationCompleted})
	tally.Record(bus.Event{Type: bus.EventGenerationStarted})
	tally.Record(bus.Event{Type: bus.EventGenerationFailed, Payload: map[string]string{"code": providertypes.CodeSubscriptionRequired}})
	tally.Record(bus.Event{Type: bus.EventGenerationCancelled})
	tally.Record(bus.Event{Type: bus.EventGenerationSuperseded})

	counts := tally.Counts()
	if counts.Started != 2 || counts.Completed != 1 || counts.Failed != 1 || counts.Cancelled != 1 || counts.Superseded != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if counts.FailureCodes[providertypes.CodeSubscriptionRequired] != 1 {
		t.Fatalf("failure codes = %v", counts.FailureCodes)
	}

	counts.FailureCodes["mutated"] = 1
	if _, ok := tally.Counts().FailureCodes["mutated"]; ok {
		t.Fatal("Counts should return a copy")
	}
}

func TestTallyConsumeStopsOnClose(t *testing.T) {
	var tally Tally
	events := make(chan bus.Event, 2)
	events <- bus.Event{Type: bus.EventGenerationCompleted}
	close(events)

	done := make(chan struct{})
	go func() {
		tally.Consume(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after channel close")
	}
	if got := tally.Counts().Completed; got != 1 {
		t.Fatalf("completed = %d, want 1", got)
	}
}

var _ Backend = (*fakeBackend)(nil)
