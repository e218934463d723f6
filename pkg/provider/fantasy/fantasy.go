package fantasy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	core "charm.land/fantasy"
	provideropenai "charm.land/fantasy/providers/openai"

	"themeforge/pkg/config"
	"themeforge/pkg/convert"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/tracer"
)

type languageModelProvider interface {
	LanguageModel(ctx context.Context, modelID string) (core.LanguageModel, error)
}

// Client sends generation requests through a fantasy language model. Each
// request is self-contained: the full conversation travels with every call.
type Client struct {
	provider        languageModelProvider
	requestTimeout  time.Duration
	modelID         string
	maxOutputTokens *int64
	temperature     *float64
	generate        func(context.Context, core.LanguageModel, core.Call) (*core.Response, error)
	log             *slog.Logger
}

func New(cfg *config.Config) (*Client, error) {
	apiKey := resolveAPIKey(cfg.Providers.OpenAI)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be set")
	}

	modelID, err := providertypes.NormalizeModel(cfg.Gateway.Model, "openai")
	if err != nil {
		return nil, err
	}

	providerOptions := []provideropenai.Option{provideropenai.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.Providers.OpenAI.BaseURL); baseURL != "" {
		providerOptions = append(providerOptions, provideropenai.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Providers.OpenAI.Organization); organization != "" {
		providerOptions = append(providerOptions, provideropenai.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Providers.OpenAI.Project); project != "" {
		providerOptions = append(providerOptions, provideropenai.WithProject(project))
	}

	fantasyProvider, err := provideropenai.New(providerOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialize fantasy openai provider: %w", err)
	}

	client := &Client{
		provider:       fantasyProvider,
		requestTimeout: time.Duration(cfg.Providers.OpenAI.RequestTimeoutSeconds) * time.Second,
		modelID:        modelID,
		generate:       generateWithModel,
		log:            slog.Default().With("component", "provider.fantasy"),
	}

	if cfg.Gateway.MaxTokens > 0 {
		maxTokens := int64(cfg.Gateway.MaxTokens)
		client.maxOutputTokens = &maxTokens
	}
	if cfg.Gateway.Temperature > 0 {
		temp := cfg.Gateway.Temperature
		client.temperature = &temp
	}

	return client, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.provider.LanguageModel(ctx, c.modelID); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

func (c *Client) Complete(ctx context.Context, req providertypes.Request) (providertypes.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "fantasy.complete")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("model", c.modelID), tracer.IntAttr("messages", len(req.Messages)))

	if len(req.Messages) == 0 {
		return providertypes.Completion{}, errors.New("messages are required")
	}

	languageModel, err := c.provider.LanguageModel(ctx, c.modelID)
	if err != nil {
		tracer.RecordError(span, err)
		return providertypes.Completion{}, fmt.Errorf("resolve language model: %w", err)
	}

	call := core.Call{
		Prompt:          buildPrompt(req),
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     c.temperature,
	}

	generate := c.generate
	if generate == nil {
		generate = generateWithModel
	}

	startedAt := time.Now()
	response, err := generate(ctx, languageModel, call)
	if err != nil {
		tracer.RecordError(span, err)
		c.log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Completion{}, fmt.Errorf("completion failed: %w", err)
	}

	text := extractText(response.Content)
	if text == "" {
		err := errors.New("completion succeeded but returned no text")
		tracer.RecordError(span, err)
		return providertypes.Completion{}, err
	}

	usage := providertypes.TokenUsage{
		InputTokens:     response.Usage.InputTokens,
		OutputTokens:    response.Usage.OutputTokens,
		TotalTokens:     response.Usage.TotalTokens,
		ReasoningTokens: response.Usage.ReasoningTokens,
		CacheReadTokens: response.Usage.CacheReadTokens,
	}
	metadata := providertypes.PromptMetadata{Provider: "fantasy", Model: c.modelID}
	if !usage.IsZero() {
		metadata.Usage = &usage
	}

	tracer.SetOK(span)
	c.log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))
	return providertypes.Completion{Text: text, Metadata: metadata}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

// buildPrompt maps the converted conversation onto fantasy messages. Inline
// images become file parts; remote image URLs are passed as a text reference
// because the model cannot fetch them itself.
func buildPrompt(req providertypes.Request) core.Prompt {
	messages := make(core.Prompt, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, core.Message{
			Role:    core.MessageRoleSystem,
			Content: []core.MessagePart{core.TextPart{Text: system}},
		})
	}

	for _, msg := range req.Messages {
		if msg.Role != prompt.RoleUser {
			messages = append(messages, core.Message{
				Role:    core.MessageRoleAssistant,
				Content: []core.MessagePart{core.TextPart{Text: msg.Text}},
			})
			continue
		}

		parts := make([]core.MessagePart, 0, len(msg.Parts))
		for i, part := range msg.Parts {
			switch part.Type {
			case convert.PartText:
				parts = append(parts, core.TextPart{Text: part.Text})
			case convert.PartImage:
				mediaType, data, err := convert.ParseDataURL(part.Image)
				if err != nil {
					parts = append(parts, core.TextPart{Text: "Reference image: " + part.Image})
					continue
				}
				parts = append(parts, core.FilePart{
					Filename:  fmt.Sprintf("image-%d", i+1),
					Data:      data,
					MediaType: mediaType,
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		messages = append(messages, core.Message{Role: core.MessageRoleUser, Content: parts})
	}
	return messages
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func extractText(content core.ResponseContent) string {
	lines := make([]string, 0)
	for _, part := range content {
		if part.GetType() != core.ContentTypeText {
			continue
		}

		textPart, ok := core.AsContentType[core.TextContent](part)
		if !ok {
			continue
		}

		line := strings.TrimSpace(textPart.Text)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func generateWithModel(ctx context.Context, model core.LanguageModel, call core.Call) (*core.Response, error) {
	return model.Generate(ctx, call)
}
