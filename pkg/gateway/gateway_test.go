package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"themeforge/pkg/config"
	"themeforge/pkg/provider/httpapi"
	providertypes "themeforge/pkg/provider/types"
)

const generatedReply = "```json\n{\"text\":\"A warm theme\",\"theme\":{\"light\":{\"primary\":\"#f97316\",\"spacing\":\"1rem\"},\"dark\":{\"primary\":\"#fb923c\"}}}\n```"

type fakeProvider struct {
	mu        sync.Mutex
	healthErr error
	text      string
	err       error
	usage     *providertypes.TokenUsage
	requests  []providertypes.Request
}

func (p *fakeProvider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthErr
}

func (p *fakeProvider) Complete(_ context.Context, req providertypes.Request) (providertypes.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return providertypes.Completion{}, p.err
	}
	return providertypes.Completion{
		Text:     p.text,
		Metadata: providertypes.PromptMetadata{Provider: "fake", Model: "fake-1", Usage: p.usage},
	}, nil
}

func (p *fakeProvider) setHealthErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthErr = err
}

func (p *fakeProvider) lastRequest() providertypes.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Gateway.RateLimit.RequestsPerMinute = -1
	cfg.Gateway.FreeTierRequests = 10
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, client *fakeProvider) *Server {
	t.Helper()

	server, err := NewServer(cfg, client, slog.Default())
	require.NoError(t, err)
	return server
}

func generateBody(t *testing.T) string {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"messages": []map[string]any{
			{"role": "user", "content": []map[string]string{{"type": "text", "text": "make it warm"}}},
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func postGenerate(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, httpapi.GeneratePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) providertypes.APIError {
	t.Helper()

	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var apiErr providertypes.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestQuotaFreeTier(t *testing.T) {
	t.Parallel()

	q := newQuota(2)
	status, ok := q.Reserve("alice")
	require.True(t, ok)
	require.Equal(t, 2, status.RequestsRemaining)
	q.Record("alice", &providertypes.TokenUsage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7})

	_, ok = q.Reserve("alice")
	require.True(t, ok)
	q.Record("alice", nil)

	status, ok = q.Reserve("alice")
	require.False(t, ok)
	require.Equal(t, 2, status.RequestsUsed)
	require.Zero(t, status.RequestsRemaining)

	_, ok = q.Reserve("bob")
	require.True(t, ok, "quota is per subject")
	q.Release("bob")

	q.Reset()
	_, ok = q.Reserve("alice")
	require.True(t, ok)
	require.EqualValues(t, 7, q.Tokens("alice").TotalTokens, "reset keeps token tallies")
}

func TestQuotaReservationsHoldTheLimit(t *testing.T) {
	t.Parallel()

	q := newQuota(2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Reserve("alice"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 2, granted, "in-flight requests count against the free tier")
	require.Zero(t, q.Status("alice").RequestsRemaining)

	q.Release("alice")
	require.Equal(t, 1, q.Status("alice").RequestsRemaining, "a failed request gives its slot back")
	q.Record("alice", nil)
	status := q.Status("alice")
	require.Equal(t, 1, status.RequestsUsed)
	require.Equal(t, 1, status.RequestsRemaining)
}

func TestQuotaNegativeLimitIsSubscribed(t *testing.T) {
	t.Parallel()

	q := newQuota(-1)
	for range 3 {
		q.Record("alice", nil)
	}
	status, ok := q.Reserve("alice")
	require.True(t, ok)
	require.True(t, status.IsSubscribed)
	require.Equal(t, 3, status.RequestsUsed)
}

func TestResultParserParse(t *testing.T) {
	t.Parallel()

	parser, err := newResultParser()
	require.NoError(t, err)

	tests := []struct {
		name    string
		raw     string
		text    string
		primary string
		wantErr bool
	}{
		{name: "plain", raw: `{"text":"ok","theme":{"light":{"primary":"red"},"dark":{}}}`, text: "ok", primary: "red"},
		{name: "fenced", raw: generatedReply, text: "A warm theme", primary: "#f97316"},
		{name: "surrounding prose", raw: `Here you go: {"text":" hi ","theme":{"light":{"primary":"blue"}}} enjoy`, text: "hi", primary: "blue"},
		{name: "missing text", raw: `{"theme":{"light":{},"dark":{}}}`, wantErr: true},
		{name: "non string token", raw: `{"text":"x","theme":{"light":{"radius":4}}}`, wantErr: true},
		{name: "no object", raw: "sorry, I cannot help", wantErr: true},
		{name: "broken json", raw: `{"text": "x", "theme": {`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := parser.Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.text, result.Text)
			require.Equal(t, tt.primary, result.Theme.Light["primary"])
			require.NotNil(t, result.Theme.Dark)
			require.NotContains(t, result.Theme.Light, "spacing")
		})
	}
}

func TestNewServerRejectsInvalidQuotaReset(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Gateway.QuotaReset = "every tuesday"
	_, err := NewServer(cfg, &fakeProvider{}, nil)
	require.Error(t, err)
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeProvider{text: generatedReply, usage: &providertypes.TokenUsage{InputTokens: 5, OutputTokens: 6, TotalTokens: 11}}
	server := newTestServer(t, testConfig(), client)

	rec := postGenerate(server.Handler(), generateBody(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var result providertypes.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "A warm theme", result.Text)
	require.Equal(t, "#fb923c", result.Theme.Dark["primary"])

	req := client.lastRequest()
	require.Contains(t, req.System, "shadcn/ui theme generator")
	require.Len(t, req.Messages, 1)
	require.Equal(t, "make it warm", req.Messages[0].Parts[0].Text)

	status := server.quota.Status("192.0.2.1")
	require.Equal(t, 1, status.RequestsUsed)
	require.EqualValues(t, 11, server.quota.Tokens("192.0.2.1").TotalTokens)
}

func TestGenerateKeepsCallerRequestID(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, testConfig(), &fakeProvider{text: generatedReply})
	rec := postGenerate(server.Handler(), generateBody(t), map[string]string{requestIDHeader: "req-42"})
	require.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"messages":`},
		{name: "empty messages", body: `{"messages":[]}`},
		{name: "missing messages", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &fakeProvider{text: generatedReply}
			server := newTestServer(t, testConfig(), client)

			rec := postGenerate(server.Handler(), tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			apiErr := decodeAPIError(t, rec)
			require.Equal(t, providertypes.CodeValidation, apiErr.Code)
			require.NotEmpty(t, apiErr.Data["details"])
			require.Empty(t, client.requests)
		})
	}
}

func TestGenerateQuotaExhausted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Gateway.FreeTierRequests = 1
	client := &fakeProvider{text: generatedReply}
	server := newTestServer(t, cfg, client)
	handler := server.Handler()

	require.Equal(t, http.StatusOK, postGenerate(handler, generateBody(t), nil).Code)

	rec := postGenerate(handler, generateBody(t), nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	apiErr := decodeAPIError(t, rec)
	require.Equal(t, providertypes.CodeSubscriptionRequired, apiErr.Code)
	require.Equal(t, quotaExceededMessage, apiErr.Message)
	require.EqualValues(t, 0, apiErr.Data["requestsRemaining"])
	require.Len(t, client.requests, 1)
}

func TestGenerateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		text       string
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{
			name:       "aborted",
			err:        fmt.Errorf("completion failed: %w", context.Canceled),
			wantStatus: StatusClientClosedRequest,
			wantBody:   "Request aborted by user",
		},
		{
			name:       "categorized",
			err:        providertypes.Unauthorized("Provider rejected credentials"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   providertypes.CodeUnauthorized,
		},
		{
			name:       "unknown",
			err:        errors.New("upstream exploded"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal Server Error",
		},
		{
			name:       "unparseable output",
			text:       "I'd rather not",
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, testConfig(), &fakeProvider{err: tt.err, text: tt.text})
			rec := postGenerate(server.Handler(), generateBody(t), nil)
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantCode != "" {
				require.Equal(t, tt.wantCode, decodeAPIError(t, rec).Code)
			} else {
				require.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			}
			status := server.quota.Status("192.0.2.1")
			require.Zero(t, status.RequestsUsed, "failed generations are not counted")
			require.Equal(t, server.cfg.Gateway.FreeTierRequests, status.RequestsRemaining, "failed generations release their slot")
		})
	}
}

func TestAuthToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Gateway.AuthToken = "secret"
	server := newTestServer(t, cfg, &fakeProvider{text: generatedReply})
	handler := server.Handler()

	rec := postGenerate(handler, generateBody(t), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, providertypes.CodeUnauthorized, decodeAPIError(t, rec).Code)

	rec = postGenerate(handler, generateBody(t), map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postGenerate(handler, generateBody(t), map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, server.quota.Status("secret").RequestsUsed, "token is the quota subject")

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, health.Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Gateway.RateLimit.RequestsPerMinute = 1
	cfg.Gateway.RateLimit.Burst = 1
	server := newTestServer(t, cfg, &fakeProvider{text: generatedReply})
	handler := server.Handler()

	require.Equal(t, http.StatusOK, postGenerate(handler, generateBody(t), nil).Code)

	rec := postGenerate(handler, generateBody(t), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "Rate limit exceeded. Please try again later.", strings.TrimSpace(rec.Body.String()))
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
}

func TestSessionAndSubscriptionEndpoints(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Gateway.FreeTierRequests = 3
	server := newTestServer(t, cfg, &fakeProvider{text: generatedReply})
	handler := server.Handler()
	require.Equal(t, http.StatusOK, postGenerate(handler, generateBody(t), nil).Code)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, httpapi.SessionPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, httpapi.SubscriptionPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"isSubscribed":false,"requestsUsed":1,"requestsRemaining":2}`, rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	client := &fakeProvider{}
	server := newTestServer(t, testConfig(), client)
	require.False(t, server.isReady(), "not ready before the first health check")

	require.NoError(t, server.checkProviderHealth(context.Background()))
	require.True(t, server.isReady())

	client.setHealthErr(errors.New("outage"))
	require.Error(t, server.checkProviderHealth(context.Background()))
	require.False(t, server.isReady())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var payload statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "not_ready", payload.Status)
	require.Equal(t, "outage", payload.ProviderLastErr)
}
