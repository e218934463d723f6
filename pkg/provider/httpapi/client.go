package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"themeforge/pkg/config"
	"themeforge/pkg/convert"
	"themeforge/pkg/prompt"
	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/tracer"
)

const (
	GeneratePath     = "/api/generate-theme"
	SessionPath      = "/api/session"
	SubscriptionPath = "/api/subscription"

	defaultMaxFailures uint32 = 5
	defaultTimeout            = 30 * time.Second
	defaultInterval           = 60 * time.Second

	maxErrorBody = 64 * 1024
)

// GenerateRequest is the body of a generation call.
type GenerateRequest struct {
	Messages []convert.APIMessage `json:"messages"`
}

// Client calls the theme generation endpoint. Repeated server failures open a
// circuit breaker so a broken backend fails fast.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[providertypes.Result]
	log       *slog.Logger
}

func New(cfg config.ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client.base_url is required")
	}

	log := slog.Default().With("component", "provider.httpapi")

	maxFailures := cfg.CircuitBreaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := time.Duration(cfg.CircuitBreaker.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := time.Duration(cfg.CircuitBreaker.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	breaker := gobreaker.NewCircuitBreaker[providertypes.Result](gobreaker.Settings{
		Name:        "generate-theme",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: countsAsSuccess,
	})

	return &Client{
		baseURL:   baseURL,
		authToken: strings.TrimSpace(cfg.AuthToken),
		http:      &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
		breaker:   breaker,
		log:       log,
	}, nil
}

// Generate converts the chat log and posts it. Cancelling ctx aborts the
// request; the returned error then wraps context.Canceled.
func (c *Client) Generate(ctx context.Context, messages []prompt.ChatMessage) (providertypes.Result, error) {
	ctx, span := tracer.StartSpan(ctx, "httpapi.generate")
	defer span.End()

	apiMessages := convert.ToAPIMessages(messages)
	span.SetAttributes(tracer.IntAttr("messages", len(apiMessages)))

	startedAt := time.Now()
	c.log.Debug("generation request started", "messages", len(apiMessages))

	result, err := c.breaker.Execute(func() (providertypes.Result, error) {
		return c.post(ctx, GenerateRequest{Messages: apiMessages})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("generation endpoint unavailable: %w", err)
		}
		tracer.RecordError(span, err)
		c.log.Debug("generation request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Result{}, err
	}

	tracer.SetOK(span)
	c.log.Debug("generation request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "text_length", len(result.Text))
	return result, nil
}

func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) post(ctx context.Context, body GenerateRequest) (providertypes.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return providertypes.Result{}, fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(payload))
	if err != nil {
		return providertypes.Result{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providertypes.Result{}, ctxErr
		}
		return providertypes.Result{}, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providertypes.Result{}, decodeError(resp)
	}

	var result providertypes.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providertypes.Result{}, ctxErr
		}
		return providertypes.Result{}, fmt.Errorf("decode generate response: %w", err)
	}
	return result, nil
}

// CheckSession reports whether the configured token is accepted by the
// backend. A 401 is a definite no; other failures are returned as errors.
func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	err := c.getJSON(ctx, SessionPath, &body)
	if apiErr, ok := providertypes.AsAPIError(err); ok && apiErr.Status == http.StatusUnauthorized {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return body.Authenticated, nil
}

func (c *Client) SubscriptionStatus(ctx context.Context) (providertypes.SubscriptionStatus, error) {
	var status providertypes.SubscriptionStatus
	if err := c.getJSON(ctx, SubscriptionPath, &status); err != nil {
		return providertypes.SubscriptionStatus{}, err
	}
	return status, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// decodeError turns a non-2xx response into an *APIError. JSON bodies carry
// {code, message, data}; anything else uses the raw body as the message.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Code    *string        `json:"code"`
			Message *string        `json:"message"`
			Data    map[string]any `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err == nil {
			code := providertypes.CodeUnknown
			if body.Code != nil {
				code = *body.Code
			}
			message := "Error"
			if body.Message != nil {
				message = *body.Message
			}
			return providertypes.NewAPIError(resp.StatusCode, code, message, body.Data)
		}
	}

	message := strings.TrimSpace(string(raw))
	if message == "" {
		message = "Failed to generate theme"
	}
	return providertypes.NewAPIError(resp.StatusCode, providertypes.CodeUnknown, message, nil)
}

// countsAsSuccess keeps client-side outcomes from tripping the breaker: a
// cancelled request or a 4xx answer says nothing about backend health.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if apiErr, ok := providertypes.AsAPIError(err); ok {
		return apiErr.Status < http.StatusInternalServerError
	}
	return false
}
