package gateway

import (
	"sync"

	providertypes "themeforge/pkg/provider/types"
)

// quota counts generation requests per client against the free tier and keeps
// a running token tally. A negative limit means every client is subscribed.
// In-flight requests hold a reservation so concurrent callers cannot overshoot
// the limit.
type quota struct {
	limit int

	mu      sync.Mutex
	used    map[string]int
	pending map[string]int
	tokens  map[string]providertypes.TokenUsage
}

func newQuota(limit int) *quota {
	return &quota{
		limit:   limit,
		used:    make(map[string]int),
		pending: make(map[string]int),
		tokens:  make(map[string]providertypes.TokenUsage),
	}
}

func (q *quota) Status(subject string) providertypes.SubscriptionStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked(subject)
}

func (q *quota) statusLocked(subject string) providertypes.SubscriptionStatus {
	used := q.used[subject]
	if q.limit < 0 {
		return providertypes.SubscriptionStatus{IsSubscribed: true, RequestsUsed: used}
	}
	return providertypes.SubscriptionStatus{
		RequestsUsed:      used,
		RequestsRemaining: max(0, q.limit-used-q.pending[subject]),
	}
}

// Reserve claims one request for subject. The reservation must end with
// Record when the generation succeeds or Release when it does not.
func (q *quota) Reserve(subject string) (providertypes.SubscriptionStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status := q.statusLocked(subject)
	if !status.IsSubscribed && status.RequestsRemaining <= 0 {
		return status, false
	}
	q.pending[subject]++
	return status, true
}

// Release returns a reservation that did not produce a generation.
func (q *quota) Release(subject string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked(subject)
}

func (q *quota) releaseLocked(subject string) {
	switch n := q.pending[subject]; {
	case n > 1:
		q.pending[subject] = n - 1
	case n == 1:
		delete(q.pending, subject)
	}
}

// Record turns subject's reservation into one counted generation.
func (q *quota) Record(subject string, usage *providertypes.TokenUsage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked(subject)
	q.used[subject]++
	if usage == nil {
		return
	}
	total := q.tokens[subject]
	total.InputTokens += usage.InputTokens
	total.OutputTokens += usage.OutputTokens
	total.TotalTokens += usage.TotalTokens
	total.ReasoningTokens += usage.ReasoningTokens
	total.CacheReadTokens += usage.CacheReadTokens
	q.tokens[subject] = total
}

func (q *quota) Tokens(subject string) providertypes.TokenUsage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tokens[subject]
}

// Reset starts every client's free tier over. Token tallies and in-flight
// reservations are kept.
func (q *quota) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.used)
}
