package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEventFanout(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	eventsA, unsubA := b.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := b.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventGenerationStarted, RequestID: "1"}
	if ok := b.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventGenerationStarted {
				t.Fatalf("subscriber %s event type = %q, want %q", name, got.Type, EventGenerationStarted)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event has no timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventGenerationStarted}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := b.PublishEvent(ctx, Event{Type: EventGenerationCompleted}); !ok {
		t.Fatal("expected second event publish to succeed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case <-events:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventGenerationStarted}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestSubscribeEventsUnblocksOnClose(t *testing.T) {
	b := New()

	events, _ := b.SubscribeEvents(context.Background(), 1)
	b.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}

	if ok := b.PublishEvent(context.Background(), Event{Type: EventGenerationFailed}); ok {
		t.Fatal("expected publish to fail after close")
	}
	if late, _ := b.SubscribeEvents(context.Background(), 1); late != nil {
		if _, ok := <-late; ok {
			t.Fatal("subscription after close should be closed")
		}
	}
}

func TestContextCancellationUnsubscribes(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := b.SubscribeEvents(ctx, 1)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel after context cancel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription did not end with its context")
	}

	if ok := b.PublishEvent(ctx, Event{Type: EventGenerationStarted}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		_, unsubscribe := b.SubscribeEvents(ctx, 1)
		go func() {
			defer wg.Done()
			b.PublishEvent(ctx, Event{Type: EventGenerationCancelled})
		}()
		go func() {
			defer wg.Done()
			unsubscribe()
		}()
	}
	wg.Wait()
}
