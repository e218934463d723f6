package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/theme"
)

type outcome struct {
	result providertypes.Result
	err    error
}

// scriptedGenerator blocks every call until the test releases it. Calls ignore
// context cancellation so late responses can be simulated.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []chan outcome
	started chan int
	ctxs    []context.Context
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{started: make(chan int, 16)}
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ []prompt.ChatMessage) (providertypes.Result, error) {
	release := make(chan outcome, 1)

	g.mu.Lock()
	g.calls = append(g.calls, release)
	g.ctxs = append(g.ctxs, ctx)
	idx := len(g.calls) - 1
	g.mu.Unlock()

	g.started <- idx
	out := <-release
	return out.result, out.err
}

func (g *scriptedGenerator) release(t *testing.T, idx int, out outcome) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[idx] <- out
}

func (g *scriptedGenerator) ctx(idx int) context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctxs[idx]
}

func waitStarted(t *testing.T, g *scriptedGenerator) int {
	t.Helper()
	select {
	case idx := <-g.started:
		return idx
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not start")
		return -1
	}
}

type runResult struct {
	result providertypes.Result
	err    error
}

func startRun(s *Store, messages []prompt.ChatMessage) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		result, err := s.Generate(context.Background(), messages)
		done <- runResult{result: result, err: err}
	}()
	return done
}

func waitRun(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not return")
		return runResult{}
	}
}

var oneMessage = []prompt.ChatMessage{{ID: "1", Role: prompt.RoleUser, PromptData: &prompt.Data{Content: "blue"}}}

func successOutcome(text string) outcome {
	return outcome{result: providertypes.Result{Text: text, Theme: theme.Empty()}}
}

func TestGenerateRequiresMessages(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	if _, err := s.Generate(context.Background(), nil); !errors.Is(err, ErrMessagesRequired) {
		t.Fatalf("err = %v, want ErrMessagesRequired", err)
	}
	if s.Loading() {
		t.Fatal("loading should stay false")
	}
	if len(g.calls) != 0 {
		t.Fatal("generator should not be called")
	}
}

func TestGenerateSuccessTogglesLoading(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	done := startRun(s, oneMessage)
	idx := waitStarted(t, g)
	if !s.Loading() {
		t.Fatal("expected loading while in flight")
	}

	g.release(t, idx, successOutcome("Done"))
	r := waitRun(t, done)
	if r.err != nil || r.result.Text != "Done" {
		t.Fatalf("result = %#v, err = %v", r.result, r.err)
	}
	if s.Loading() {
		t.Fatal("expected loading cleared after settle")
	}
}

func TestGeneratePropagatesErrors(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	done := startRun(s, oneMessage)
	idx := waitStarted(t, g)

	apiErr := providertypes.SubscriptionRequired("Upgrade", 0)
	g.release(t, idx, outcome{err: apiErr})

	r := waitRun(t, done)
	if got, ok := providertypes.AsAPIError(r.err); !ok || got.Code != providertypes.CodeSubscriptionRequired {
		t.Fatalf("err = %v, want subscription error", r.err)
	}
	if s.Loading() {
		t.Fatal("expected loading cleared after failure")
	}
}

func TestCancelClearsLoadingSynchronously(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	done := startRun(s, oneMessage)
	idx := waitStarted(t, g)

	if !s.Cancel() {
		t.Fatal("expected Cancel to report an active generation")
	}
	if s.Loading() {
		t.Fatal("loading must be false immediately after Cancel")
	}
	if !errors.Is(context.Cause(g.ctx(idx)), ErrCancelled) {
		t.Fatalf("generator context cause = %v", context.Cause(g.ctx(idx)))
	}

	// The network call still succeeds late; the result must be discarded.
	g.release(t, idx, successOutcome("late"))
	r := waitRun(t, done)
	if !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", r.err)
	}
	if r.result.Text != "" {
		t.Fatalf("late result leaked: %#v", r.result)
	}
	if s.Loading() {
		t.Fatal("late settle must not flip loading")
	}
}

func TestCancelReturnsBeforeGeneratorUnwinds(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	done := startRun(s, oneMessage)
	idx := waitStarted(t, g)
	s.Cancel()

	// The generator is still blocked; Generate must not wait for it.
	r := waitRun(t, done)
	if !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", r.err)
	}

	g.release(t, idx, successOutcome("late"))
	if s.Loading() {
		t.Fatal("late result flipped loading")
	}
}

func TestCancelWithoutGeneration(t *testing.T) {
	s := NewStore(newScriptedGenerator())
	if s.Cancel() {
		t.Fatal("Cancel with nothing in flight should report false")
	}
}

func TestNewGenerationPreemptsPrevious(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	first := startRun(s, oneMessage)
	a := waitStarted(t, g)

	second := startRun(s, oneMessage)
	b := waitStarted(t, g)

	if !errors.Is(context.Cause(g.ctx(a)), ErrSuperseded) {
		t.Fatalf("first generation cause = %v, want ErrSuperseded", context.Cause(g.ctx(a)))
	}

	// A settles after B started: no effect on loading, result discarded.
	g.release(t, a, successOutcome("stale"))
	ra := waitRun(t, first)
	if !errors.Is(ra.err, ErrSuperseded) {
		t.Fatalf("first err = %v, want ErrSuperseded", ra.err)
	}
	if !s.Loading() {
		t.Fatal("stale settle cleared the newer generation's loading flag")
	}

	g.release(t, b, successOutcome("fresh"))
	rb := waitRun(t, second)
	if rb.err != nil || rb.result.Text != "fresh" {
		t.Fatalf("second = %#v, err = %v", rb.result, rb.err)
	}
	if s.Loading() {
		t.Fatal("expected loading cleared after newest settle")
	}
}

func TestSupersededErrorIsDiscardedToo(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	first := startRun(s, oneMessage)
	a := waitStarted(t, g)
	second := startRun(s, oneMessage)
	b := waitStarted(t, g)

	g.release(t, a, outcome{err: context.Canceled})
	if r := waitRun(t, first); !errors.Is(r.err, ErrSuperseded) {
		t.Fatalf("first err = %v, want ErrSuperseded", r.err)
	}

	g.release(t, b, successOutcome("ok"))
	waitRun(t, second)
}

func TestParentContextCancellationIsCancellation(t *testing.T) {
	s := NewStore(generatorFunc(func(ctx context.Context, _ []prompt.ChatMessage) (providertypes.Result, error) {
		<-ctx.Done()
		return providertypes.Result{}, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx, oneMessage)
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for !s.Loading() {
		select {
		case <-deadline:
			t.Fatal("generation never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not return")
	}
}

func TestSubscribeReceivesLoadingChanges(t *testing.T) {
	g := newScriptedGenerator()
	s := NewStore(g)

	updates, unsubscribe := s.Subscribe(4)
	defer unsubscribe()

	done := startRun(s, oneMessage)
	idx := waitStarted(t, g)
	g.release(t, idx, successOutcome("ok"))
	waitRun(t, done)

	var got []bool
	for len(got) < 2 {
		select {
		case v := <-updates:
			got = append(got, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("updates = %v", got)
		}
	}
	if !got[0] || got[1] {
		t.Fatalf("updates = %v, want [true false]", got)
	}
}

type generatorFunc func(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error)

func (f generatorFunc) Generate(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error) {
	return f(ctx, messages)
}
