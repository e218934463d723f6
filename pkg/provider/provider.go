package provider

import (
	"context"
	"fmt"
	"log/slog"

	"themeforge/pkg/config"
	provideranthropic "themeforge/pkg/provider/anthropic"
	providerfantasy "themeforge/pkg/provider/fantasy"
	provideropenai "themeforge/pkg/provider/openai"
	providertypes "themeforge/pkg/provider/types"
)

// Client is a model backend the gateway sends generation requests to.
type Client interface {
	Health(ctx context.Context) error
	Complete(ctx context.Context, req providertypes.Request) (providertypes.Completion, error)
}

func New(cfg *config.Config) (Client, error) {
	providerID := cfg.Gateway.Provider
	if providerID == "" {
		providerID = "fantasy"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID)

	switch providerID {
	case "fantasy":
		return providerfantasy.New(cfg)
	case "openai":
		return provideropenai.New(cfg)
	case "anthropic":
		return provideranthropic.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
