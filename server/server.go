// Package server is the web shell around a session: login and callback routes, the route gate that
// keeps unauthenticated requests on the login page, and the first-run backend setup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/rs/zerolog"
)

// BackendURLKey is the durable storage key holding the backend URL entered at setup
const BackendURLKey = "backend_url"

// SessionManager is the part of *session.Manager the routes use
type SessionManager interface {
	InitiateAuth(ctx context.Context, provider string) (*authapi.AuthFlow, error)
	HandleCallback(ctx context.Context, provider, authCode, state string) error
	AccessToken(ctx context.Context) (string, bool)
	State(ctx context.Context) session.SessionState
	ExpirationTime() (time.Time, bool)
	Identity(ctx context.Context) (session.Identity, error)
	Logout(ctx context.Context) error
}

// BackendSwitch reports and changes whether a backend endpoint is configured. *authapi.Client implements it.
type BackendSwitch interface {
	Configured() bool
	BaseURL() string
	SetBaseURL(baseURL string)
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   config.Config
	sessions SessionManager
	backend  BackendSwitch
	durable  store.Repo
	validate *validator.Validate
	logger   zerolog.Logger
	metrics  http.Handler
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func New(ctx context.Context, cfg config.Config, sessions SessionManager, backend BackendSwitch, durable store.Repo, options ...Option) (*Server, error) {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		sessions: sessions,
		backend:  backend,
		durable:  durable,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.restoreBackend(ctx); err != nil {
		return nil, fmt.Errorf("[Server New] failed to restore backend url: %w", err)
	}

	s.initRoutes()
	s.handler = ChainMiddleware(s.mux.ServeHTTP,
		s.RequestIDMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.FrameSecurityMiddleware,
		s.RequireBackend,
		s.RequireSessionCookie,
	)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// restoreBackend applies a backend URL saved by an earlier setup when none is configured
func (s *Server) restoreBackend(ctx context.Context) error {
	if s.backend.Configured() {
		return nil
	}
	baseURL, err := s.durable.Get(ctx, BackendURLKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.backend.SetBaseURL(baseURL)
	s.logger.Info().Str("backend_url", baseURL).Msg("backend url restored")
	return nil
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			s.logger.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
