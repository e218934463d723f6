package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"themeforge/pkg/agent/profile"
	"themeforge/pkg/config"
	"themeforge/pkg/provider"
	"themeforge/pkg/provider/httpapi"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 18791

	providerCheckInterval = 30 * time.Second
	limiterSweepInterval  = time.Minute
	limiterIdleTimeout    = 10 * time.Minute
)

// Server is the theme generation gateway. It fronts a model provider with
// auth, rate limiting and a free-tier quota.
type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	provider provider.Client
	system   string
	parser   *resultParser
	quota    *quota
	limiter  *rateLimiter

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
}

type statusResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	ProviderLastOKAt string `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string `json:"provider_last_error,omitempty"`
}

func NewServer(cfg *config.Config, client provider.Client, log *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	if spec := strings.TrimSpace(cfg.Gateway.QuotaReset); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("gateway.quota_reset %q: %w", spec, err)
		}
	}

	system, err := profile.ResolveSystemProfile()
	if err != nil {
		return nil, fmt.Errorf("resolve system prompt: %w", err)
	}

	parser, err := newResultParser()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		log:      log.With("component", "gateway"),
		provider: client,
		system:   system,
		parser:   parser,
		quota:    newQuota(cfg.Gateway.FreeTierRequests),
		limiter:  newRateLimiter(cfg.Gateway.RateLimit.RequestsPerMinute, cfg.Gateway.RateLimit.Burst),
	}, nil
}

// Handler returns the gateway routes. Health endpoints bypass auth.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	generate := http.Handler(http.HandlerFunc(s.handleGenerate))
	if s.cfg.Gateway.RateLimit.RequestsPerMinute > 0 {
		generate = s.limiter.middleware(generate)
	}
	api.Handle("POST "+httpapi.GeneratePath, generate)
	api.HandleFunc("GET "+httpapi.SessionPath, s.handleSession)
	api.HandleFunc("GET "+httpapi.SubscriptionPath, s.handleSubscription)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", withAuth(strings.TrimSpace(s.cfg.Gateway.AuthToken), s.log, api))

	return withRequestID(mux)
}

// Run serves until ctx is cancelled. The provider must be healthy at start.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkProviderHealth(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(providerCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.checkProviderHealth(ctx); err != nil {
					s.log.Warn("Provider health check failed", "error", err)
				}
			}
		}
	}()
	go s.limiter.sweep(ctx, limiterSweepInterval, limiterIdleTimeout)

	if spec := strings.TrimSpace(s.cfg.Gateway.QuotaReset); spec != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(spec, s.resetQuota); err != nil {
			return fmt.Errorf("schedule quota reset: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}
	addr := host + ":" + strconv.Itoa(port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway started", "address", addr, "provider", s.cfg.Gateway.Provider, "model", s.cfg.Gateway.Model)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start gateway server: %w", err)
	}
	return nil
}

func (s *Server) resetQuota() {
	s.quota.Reset()
	s.log.Info("Free-tier quota reset")
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.quota.Status(subjectFrom(r.Context())))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}
	s.respondStatus(w, statusCode, status)
}

func (s *Server) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.mu.RLock()
	payload := statusResponse{Status: status, ProviderLastErr: s.providerLastErr}
	if !s.startedAt.IsZero() {
		payload.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	if !s.providerLastOKAt.IsZero() {
		payload.ProviderLastOKAt = s.providerLastOKAt.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	writeJSON(w, statusCode, payload)
}

func (s *Server) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.providerLastOKAt.IsZero() && s.providerLastErr == ""
}

func (s *Server) checkProviderHealth(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
