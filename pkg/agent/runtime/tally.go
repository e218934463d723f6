package runtime

import (
	"context"
	"sync"

	"themeforge/pkg/bus"
)

// Counts summarises how the generations of one session ended.
type Counts struct {
	Started    int
	Completed  int
	Failed     int
	Cancelled  int
	Superseded int
	// FailureCodes counts failures by API error code.
	FailureCodes map[string]int
}

// Tally accumulates Counts from generation events.
type Tally struct {
	mu     sync.Mutex
	counts Counts
}

// Consume records events until ctx ends or the channel closes.
func (t *Tally) Consume(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			t.Record(event)
		}
	}
}

func (t *Tally) Record(event bus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case bus.EventGenerationStarted:
		t.counts.Started++
	case bus.EventGenerationCompleted:
		t.counts.Completed++
	case bus.EventGenerationFailed:
		t.counts.Failed++
		if code := event.Payload["code"]; code != "" {
			if t.counts.FailureCodes == nil {
				t.counts.FailureCodes = make(map[string]int)
			}
			t.counts.FailureCodes[code]++
		}
	case bus.EventGenerationCancelled:
		t.counts.Cancelled++
	case bus.EventGenerationSuperseded:
		t.counts.Superseded++
	}
}

func (t *Tally) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.counts
	if t.counts.FailureCodes != nil {
		out.FailureCodes = make(map[string]int, len(t.counts.FailureCodes))
		for code, n := range t.counts.FailureCodes {
			out.FailureCodes[code] = n
		}
	}
	return out
}
