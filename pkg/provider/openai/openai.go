package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"themeforge/pkg/config"
	"themeforge/pkg/convert"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/tracer"
)

// Client calls the OpenAI Responses API directly.
type Client struct {
	client          osdk.Client
	modelID         string
	maxOutputTokens int64
	temperature     float64
	requestTimeout  time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	modelID, err := providertypes.NormalizeModel(cfg.Gateway.Model, "openai")
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:          osdk.NewClient(opts...),
		modelID:         modelID,
		maxOutputTokens: int64(cfg.Gateway.MaxTokens),
		temperature:     cfg.Gateway.Temperature,
		requestTimeout:  requestTimeout,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

func (c *Client) Complete(ctx context.Context, req providertypes.Request) (providertypes.Completion, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "complete")
	startedAt := time.Now()

	ctx, span := tracer.StartSpan(ctx, "openai.complete")
	defer span.End()

	input := buildInput(req.Messages)
	if len(input) == 0 {
		return providertypes.Completion{}, errors.New("messages are required")
	}
	span.SetAttributes(tracer.StringAttr("model", c.modelID), tracer.IntAttr("messages", len(input)))
	log.Debug("provider request started", "model", c.modelID, "messages", len(input))

	params := responses.ResponseNewParams{
		Model: c.modelID,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.Instructions = osdk.String(system)
	}
	if c.maxOutputTokens > 0 {
		params.MaxOutputTokens = osdk.Int(c.maxOutputTokens)
	}
	if c.temperature > 0 {
		params.Temperature = osdk.Float(c.temperature)
	}

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		tracer.RecordError(span, err)
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Completion{}, fmt.Errorf("completion failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		err := errors.New("completion succeeded but returned no text")
		tracer.RecordError(span, err)
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return providertypes.Completion{}, err
	}

	usage := providertypes.TokenUsage{
		InputTokens:     response.Usage.InputTokens,
		OutputTokens:    response.Usage.OutputTokens,
		TotalTokens:     response.Usage.TotalTokens,
		ReasoningTokens: response.Usage.OutputTokensDetails.ReasoningTokens,
		CacheReadTokens: response.Usage.InputTokensDetails.CachedTokens,
	}
	metadata := providertypes.PromptMetadata{Provider: "openai", Model: c.modelID}
	if !usage.IsZero() {
		metadata.Usage = &usage
	}

	tracer.SetOK(span)
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))
	return providertypes.Completion{Text: text, Metadata: metadata}, nil
}

// buildInput maps the converted conversation onto Responses API input items.
// Assistant turns are plain strings; user turns are content lists so images
// can ride along with the text.
func buildInput(messages []convert.APIMessage) responses.ResponseInputParam {
	input := make(responses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != prompt.RoleUser {
			input = append(input, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRoleAssistant,
					Content: responses.EasyInputMessageContentUnionParam{OfString: osdk.String(msg.Text)},
				},
			})
			continue
		}

		content := make(responses.ResponseInputMessageContentListParam, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case convert.PartText:
				content = append(content, responses.ResponseInputContentUnionParam{
					OfInputText: &responses.ResponseInputTextParam{Text: part.Text},
				})
			case convert.PartImage:
				content = append(content, responses.ResponseInputContentUnionParam{
					OfInputImage: &responses.ResponseInputImageParam{
						ImageURL: osdk.String(part.Image),
						Detail:   responses.ResponseInputImageDetailAuto,
					},
				})
			}
		}
		if len(content) == 0 {
			continue
		}
		input = append(input, responses.ResponseInputItemUnionParam{
			OfMessage: &responses.EasyInputMessageParam{
				Role:    responses.EasyInputMessageRoleUser,
				Content: responses.EasyInputMessageContentUnionParam{OfInputItemContentList: content},
			},
		})
	}
	return input
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
