// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the session engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/arena/pkg/config"
	"github.com/kadirpekel/arena/pkg/observability"
	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/recordstore"
	"github.com/kadirpekel/arena/pkg/session"
)

// Defaults for session start.
const (
	DefaultPersona    = "ServiceAgent"
	DefaultDifficulty = "easy"
)

// Server is the coordinator's HTTP server.
type Server struct {
	cfg     config.ServerConfig
	engine  *session.Engine
	records *recordstore.Store
	obs     *observability.Manager
	logger  *slog.Logger
	version string

	limiter    *rateLimiter
	router     chi.Router
	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithRecordStore serves the SOQL/SOSL endpoints from store. Without it
// those routes answer 503.
func WithRecordStore(store *recordstore.Store) Option {
	return func(s *Server) {
		s.records = store
	}
}

// WithObservability enables request tracing and metrics.
func WithObservability(m *observability.Manager) Option {
	return func(s *Server) {
		s.obs = m
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version advertised in the agent card.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, engine *session.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.observeMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/a2a", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/continue", s.handleContinue)
		r.Get("/card", s.handleCard)
	})

	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)

	r.Route("/salesforce", func(r chi.Router) {
		r.Get("/soql", s.handleSOQL)
		r.Get("/sosl", s.handleSOSL)
	})

	r.Method(http.MethodGet, a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(s.agentCard()))

	if s.obs.MetricsEnabled() {
		r.Method(http.MethodGet, s.obs.MetricsPath(), s.obs.MetricsHandler())
	}

	return r
}

func (s *Server) publicURL() string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	return fmt.Sprintf("http://localhost:%d", s.cfg.Port)
}

// agentCard describes the coordinator to A2A discovery clients.
func (s *Server) agentCard() *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "arena-green",
		Description:        "Poses evaluation tasks to a responder agent, validates its actions and scores its decision.",
		URL:                s.publicURL() + "/a2a",
		Version:            s.version,
		ProtocolVersion:    protocol.Version,
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
		Capabilities:       a2a.AgentCapabilities{},
		PreferredTransport: a2a.TransportProtocolHTTPJSON,
		Skills: []a2a.AgentSkill{
			{
				ID:          "observation",
				Name:        "Observation",
				Description: "Sends the task and follow-up observations.",
				Tags:        []string{"evaluation"},
			},
			{
				ID:          "feedback",
				Name:        "Feedback",
				Description: "Validates action proposals and scores decisions.",
				Tags:        []string{"evaluation", "policy"},
			},
		},
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.limiter != nil {
		go s.limiter.cleanup(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", s.cfg.Address(), "public_url", s.publicURL())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
