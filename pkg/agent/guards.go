package agent

import (
	"context"
	"log/slog"

	providertypes "themeforge/pkg/provider/types"
)

// Guard decides whether a generation may start. A guard that says no owns
// the follow-up (telling the user to sign in, to upgrade, ...); the caller
// just stops.
type Guard interface {
	Allow(ctx context.Context) bool
}

type GuardFunc func(ctx context.Context) bool

func (f GuardFunc) Allow(ctx context.Context) bool { return f(ctx) }

// SessionChecker reports whether the user has a usable session.
type SessionChecker interface {
	CheckSession(ctx context.Context) (bool, error)
}

type SubscriptionStatus = providertypes.SubscriptionStatus

type SubscriptionChecker interface {
	SubscriptionStatus(ctx context.Context) (SubscriptionStatus, error)
}

// SessionGuard blocks generation without a session and notifies the user. A
// failed check lets the request through; the backend has the final word.
func SessionGuard(checker SessionChecker, notifier Notifier) Guard {
	log := slog.Default().With("component", "agent.guard", "guard", "session")
	return GuardFunc(func(ctx context.Context) bool {
		ok, err := checker.CheckSession(ctx)
		if err != nil {
			log.Warn("Session check failed", "error", err)
			return true
		}
		if !ok {
			notify(notifier, Notice{
				Level:   NoticeWarning,
				Title:   "Sign in required",
				Message: "Sign in to generate themes with AI.",
			})
		}
		return ok
	})
}

// SubscriptionGuard lets subscribers through, and free users while they have
// requests left. Otherwise it asks the user to upgrade.
func SubscriptionGuard(checker SubscriptionChecker, notifier Notifier) Guard {
	log := slog.Default().With("component", "agent.guard", "guard", "subscription")
	return GuardFunc(func(ctx context.Context) bool {
		status, err := checker.SubscriptionStatus(ctx)
		if err != nil {
			log.Warn("Subscription check failed", "error", err)
			return true
		}
		if status.IsSubscribed {
			return true
		}
		if status.RequestsRemaining <= 0 {
			notify(notifier, Notice{
				Level:   NoticeWarning,
				Title:   "Upgrade required",
				Message: "You've used all your free AI requests. Upgrade to keep generating themes.",
			})
			return false
		}
		return true
	})
}
