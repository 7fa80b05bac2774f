// Package proxy exposes the redaction engine over HTTP and as a masking
// reverse proxy in front of upstream LLM providers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/security"
	"github.com/raaihank/lexmask/internal/websocket"
	"go.uber.org/zap"
)

// Server represents the HTTP API and proxy server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *privacy.Engine
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *security.RateLimiter
	trusted security.TrustedProxies
	version string
	started time.Time
}

// New creates a new server around engine.
func New(cfg *config.Config, engine *privacy.Engine, log *logger.Logger, version string) (*Server, error) {
	trusted, err := security.ParseTrustedProxies(cfg.Security.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("proxy"),
		engine:  engine,
		router:  mux.NewRouter(),
		wsHub:   websocket.NewHub(cfg.WebSocket, log),
		limiter: security.NewRateLimiter(cfg.Security),
		trusted: trusted,
		version: version,
		started: time.Now(),
	}

	s.wsHub.SetTrustedProxies(trusted)

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() error {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.authMiddleware)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/restore", s.handleRestore).Methods(http.MethodPost)
	api.HandleFunc("/reveal", s.handleReveal).Methods(http.MethodPost)
	api.HandleFunc("/blacklist", s.handleGetBlacklist).Methods(http.MethodGet)
	api.HandleFunc("/blacklist", s.handlePutBlacklist).Methods(http.MethodPut)
	api.HandleFunc("/aliases", s.handleCreateAlias).Methods(http.MethodPost)
	api.HandleFunc("/aliases/stats", s.handleAliasStats).Methods(http.MethodGet)

	upstreams := []struct {
		name   string
		target string
	}{
		{"openai", s.config.Upstream.OpenAI},
		{"anthropic", s.config.Upstream.Anthropic},
		{"ollama", s.config.Upstream.Ollama},
	}

	for _, u := range upstreams {
		if u.target == "" {
			continue
		}
		target, err := url.Parse(u.target)
		if err != nil {
			return fmt.Errorf("invalid %s upstream URL: %w", u.name, err)
		}

		prefix := "/" + u.name
		rp := s.newReverseProxy(target, u.name)

		sub := s.router.PathPrefix(prefix).Subrouter()
		sub.Use(s.loggingMiddleware)
		sub.Use(s.rateLimitMiddleware)
		sub.Use(s.privacyMiddleware)
		sub.PathPrefix("/").Handler(http.StripPrefix(prefix, rp))
	}

	return nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub for broadcasting events
func (s *Server) Hub() *websocket.Hub {
	return s.wsHub
}

// Start runs the hub and serves HTTP until the server is stopped.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting lexmask server",
		zap.String("addr", s.server.Addr),
		zap.Bool("api_auth", s.config.Server.Username != ""),
		zap.String("upstream_openai", s.config.Upstream.OpenAI),
		zap.String("upstream_anthropic", s.config.Upstream.Anthropic),
		zap.String("upstream_ollama", s.config.Upstream.Ollama),
		zap.Bool("restore_responses", s.config.Upstream.RestoreResponses),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping lexmask server")
	return s.server.Shutdown(ctx)
}

func (s *Server) newReverseProxy(target *url.URL, provider string) *httputil.ReverseProxy {
	rp := httputil.NewSingleHostReverseProxy(target)
	director := rp.Director

	rp.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host

		// Responses are rewritten, so ask for an unencoded body.
		if s.config.Upstream.RestoreResponses {
			req.Header.Del("Accept-Encoding")
		}
		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "lexmask/"+s.version)
		}

		s.logger.WithRequestID(getRequestID(req.Context())).Debug("Proxying request",
			zap.String("provider", provider),
			zap.String("target_url", req.URL.String()),
			zap.String("method", req.Method),
		)
	}

	rp.ModifyResponse = func(resp *http.Response) error {
		if !s.config.Upstream.RestoreResponses {
			return nil
		}
		return s.restoreResponse(resp)
	}

	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Proxy error",
			zap.String("provider", provider),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = s.config.Upstream.Timeout
	rp.Transport = transport

	return rp
}
