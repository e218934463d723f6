package types

import (
	"errors"
	"fmt"
	"strings"

	"themeforge/pkg/convert"
	"themeforge/pkg/theme"
)

// Result is a generated theme as returned by the generation endpoint.
type Result struct {
	Text  string       `json:"text"`
	Theme theme.Styles `json:"theme"`
}

// Request is a model call made by the gateway: a system prompt plus the
// converted conversation.
type Request struct {
	System   string
	Messages []convert.APIMessage
}

// Completion is the normalized model response payload.
type Completion struct {
	Text     string
	Metadata PromptMetadata
}

// PromptMetadata carries provider/model identity and optional usage accounting.
type PromptMetadata struct {
	Provider string
	Model    string
	Usage    *TokenUsage
}

// TokenUsage captures token accounting across providers.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	ReasoningTokens int64
	CacheReadTokens int64
}

// IsZero reports whether all token counters are unset/zero.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 &&
		u.OutputTokens == 0 &&
		u.TotalTokens == 0 &&
		u.ReasoningTokens == 0 &&
		u.CacheReadTokens == 0
}

// SubscriptionStatus is what the backend reports about the user's plan.
type SubscriptionStatus struct {
	IsSubscribed      bool `json:"isSubscribed"`
	RequestsUsed      int  `json:"requestsUsed"`
	RequestsRemaining int  `json:"requestsRemaining"`
}

// NormalizeModel strips a "provider/" prefix from model. A prefix naming a
// different provider is an error.
func NormalizeModel(model, provider string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	providerID, modelID, found := strings.Cut(model, "/")
	if !found {
		return model, nil
	}

	providerID = strings.TrimSpace(providerID)
	modelID = strings.TrimSpace(modelID)
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != provider {
		return "", fmt.Errorf("model provider %q is not supported by %s provider", providerID, provider)
	}
	return modelID, nil
}
