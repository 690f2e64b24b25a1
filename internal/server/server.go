package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxglance/internal/accounts"
	"github.com/teemow/inboxglance/internal/gmail"
	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/logging"
	"github.com/teemow/inboxglance/internal/session"
)

// Mode selects how signed-in identities are tracked.
type Mode string

const (
	// ModeAccounts keeps every connected account in an accounts.Store.
	ModeAccounts Mode = "accounts"
	// ModeSession keeps one user per browser session.
	ModeSession Mode = "session"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAccounts, ModeSession:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeAccounts, ModeSession)
	}
}

// Authenticator runs the Google OAuth handshake. *google.Authenticator
// implements it.
type Authenticator interface {
	RedirectURL(local bool) string
	AuthCodeURL(state, redirectURL string) string
	Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)
	Email(ctx context.Context, tok *oauth2.Token) (string, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// Config holds the HTTP-facing settings.
type Config struct {
	Mode Mode

	// FrontendURL is where the deployed frontend lives; LocalFrontendURL is
	// used for requests to localhost and falls back to FrontendURL.
	FrontendURL      string
	LocalFrontendURL string

	// AllowedOrigins are the CORS origins allowed to send credentials.
	// Empty means both frontend URLs.
	AllowedOrigins []string

	// MessageLimit is the number of messages fetched per inbox.
	MessageLimit int
}

// Deps are the collaborators a Server needs. Accounts is required in
// accounts mode and Sessions in session mode.
type Deps struct {
	Auth     Authenticator
	Fetcher  accounts.InboxFetcher
	Accounts accounts.Store
	Sessions *session.Manager
	Health   *HealthChecker
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics
	Audit    *instrumentation.AuditLogger
}

// Server is the HTTP API.
type Server struct {
	config     Config
	auth       Authenticator
	fetcher    accounts.InboxFetcher
	accounts   accounts.Store
	sessions   *session.Manager
	health     *HealthChecker
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	handler    http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// New validates config against deps and builds the router. In accounts
// mode it seeds the connected_accounts gauge from the store.
func New(ctx context.Context, config Config, deps Deps) (*Server, error) {
	if _, err := ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}
	if config.FrontendURL == "" {
		return nil, errors.New("frontend URL is required")
	}
	if deps.Auth == nil || deps.Fetcher == nil {
		return nil, errors.New("authenticator and fetcher are required")
	}
	if config.Mode == ModeAccounts && deps.Accounts == nil {
		return nil, errors.New("accounts mode requires an account store")
	}
	if config.Mode == ModeSession && deps.Sessions == nil {
		return nil, errors.New("session mode requires a session manager")
	}
	if config.MessageLimit <= 0 {
		config.MessageLimit = gmail.DefaultLimit
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(config.Mode)
	}

	s := &Server{
		config:   config,
		auth:     deps.Auth,
		fetcher:  deps.Fetcher,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		health:   deps.Health,
		logger:   logging.WithMode(deps.Logger, string(config.Mode)),
		metrics:  deps.Metrics,
		audit:    deps.Audit,
	}

	if config.Mode == ModeAccounts {
		accts, err := s.accounts.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read account store: %w", err)
		}
		s.metrics.AddConnectedAccounts(ctx, int64(len(accts)))
	}

	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Method(http.MethodGet, "/healthz", s.health.LivenessHandler())
	r.Method(http.MethodGet, "/readyz", s.health.ReadinessHandler())
	r.Method(http.MethodGet, "/healthz/detailed", s.health.DetailedHealthHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/google", s.handleAuthStart)
		r.Get("/auth/google/callback", s.handleAuthCallback)

		switch s.config.Mode {
		case ModeAccounts:
			r.Get("/emails", s.handleAccountEmails)
			r.Delete("/emails/{email}", s.handleRemoveAccount)
		case ModeSession:
			r.Get("/emails", s.handleSessionEmails)
			r.Post("/logout", s.handleLogout)
		}
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.AllowedOrigins) > 0 {
		return s.config.AllowedOrigins
	}
	origins := []string{s.config.FrontendURL}
	if s.config.LocalFrontendURL != "" {
		origins = append(origins, s.config.LocalFrontendURL)
	}
	return origins
}

func (s *Server) frontendURL(local bool) string {
	if local && s.config.LocalFrontendURL != "" {
		return s.config.LocalFrontendURL
	}
	return s.config.FrontendURL
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the server's health checker.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Start listens on addr and serves until Shutdown is called. It blocks.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves the API on ln until Shutdown is called. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = ln.Close()
		return http.ErrServerClosed
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	return srv.Serve(ln)
}

// Shutdown marks the server not ready and drains in-flight requests. A
// later Serve returns http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)

	s.mu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
