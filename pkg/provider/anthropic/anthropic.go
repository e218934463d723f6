package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	asdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"themeforge/pkg/config"
	"themeforge/pkg/convert"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/tracer"
)

const defaultMaxTokens = 4096

// Client calls the Anthropic Messages API.
type Client struct {
	client         asdk.Client
	modelID        string
	maxTokens      int64
	temperature    float64
	requestTimeout time.Duration
	log            *slog.Logger
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.Anthropic
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.anthropic.api_key_env is required or ANTHROPIC_API_KEY must be set")
	}

	modelID, err := providertypes.NormalizeModel(cfg.Gateway.Model, "anthropic")
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	maxTokens := int64(cfg.Gateway.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		client:         asdk.NewClient(opts...),
		modelID:        modelID,
		maxTokens:      maxTokens,
		temperature:    cfg.Gateway.Temperature,
		requestTimeout: time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second,
		log:            slog.Default().With("component", "provider.anthropic"),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.client.Models.List(ctx, asdk.ModelListParams{}); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, req providertypes.Request) (providertypes.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "anthropic.complete")
	defer span.End()

	messages := buildMessages(req.Messages)
	if len(messages) == 0 {
		return providertypes.Completion{}, errors.New("messages are required")
	}
	span.SetAttributes(tracer.StringAttr("model", c.modelID), tracer.IntAttr("messages", len(messages)))

	params := asdk.MessageNewParams{
		Model:     asdk.Model(c.modelID),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []asdk.TextBlockParam{{Text: system}}
	}
	if c.temperature > 0 {
		params.Temperature = asdk.Float(c.temperature)
	}

	startedAt := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		tracer.RecordError(span, err)
		c.log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Completion{}, fmt.Errorf("completion failed: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(asdk.TextBlock); ok {
			if trimmed := strings.TrimSpace(text.Text); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		err := errors.New("completion succeeded but returned no text")
		tracer.RecordError(span, err)
		return providertypes.Completion{}, err
	}

	usage := providertypes.TokenUsage{
		InputTokens:     msg.Usage.InputTokens,
		OutputTokens:    msg.Usage.OutputTokens,
		TotalTokens:     msg.Usage.InputTokens + msg.Usage.OutputTokens,
		CacheReadTokens: msg.Usage.CacheReadInputTokens,
	}
	metadata := providertypes.PromptMetadata{Provider: "anthropic", Model: c.modelID}
	if !usage.IsZero() {
		metadata.Usage = &usage
	}

	tracer.SetOK(span)
	c.log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))
	return providertypes.Completion{Text: text, Metadata: metadata}, nil
}

// buildMessages maps the converted conversation onto Messages API params.
// Inline images are sent as base64 blocks, remote ones by URL.
func buildMessages(messages []convert.APIMessage) []asdk.MessageParam {
	out := make([]asdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != prompt.RoleUser {
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			out = append(out, asdk.NewAssistantMessage(asdk.NewTextBlock(msg.Text)))
			continue
		}

		blocks := make([]asdk.ContentBlockParamUnion, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case convert.PartText:
				if part.Text != "" {
					blocks = append(blocks, asdk.NewTextBlock(part.Text))
				}
			case convert.PartImage:
				if mediaType, data, err := convert.ParseDataURL(part.Image); err == nil {
					blocks = append(blocks, asdk.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)))
					continue
				}
				if strings.HasPrefix(part.Image, "http://") || strings.HasPrefix(part.Image, "https://") {
					blocks = append(blocks, asdk.NewImageBlock(asdk.URLImageSourceParam{URL: part.Image}))
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, asdk.NewUserMessage(blocks...))
	}
	return out
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.AnthropicProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}
	return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
}
