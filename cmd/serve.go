package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxglance/internal/accounts"
	"github.com/teemow/inboxglance/internal/gmail"
	"github.com/teemow/inboxglance/internal/google"
	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/logging"
	"github.com/teemow/inboxglance/internal/secrets"
	"github.com/teemow/inboxglance/internal/server"
	"github.com/teemow/inboxglance/internal/session"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP backend",
		Long: `Start the HTTP backend that runs the Google OAuth flow and serves
the newest Gmail messages to the frontend.

Every flag can also be set through an environment variable (GOOGLE_CLIENT_ID,
FRONTEND_URL, MODE, ...). A .env file in the working directory is loaded
first; variables already set in the environment take precedence over it.

Modes:
  accounts  Connected accounts are kept in a memory or SQLite store and
            listed together by GET /api/emails.
  session   Each browser signs in one user, kept in a memory or Valkey
            session store behind an HttpOnly cookie.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	addServeFlags(cmd.Flags())
	return cmd
}

// runServe starts the backend and blocks until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *Config, logOutput io.Writer) error {
	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: logOutput,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLogger(logger, cfg.Instrumentation.Audit)

	box, err := secrets.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to set up token encryption: %w", err)
	}
	if !box.Enabled() && (cfg.AccountStore == StoreSQLite || cfg.SessionStore == StoreValkey) {
		logger.Warn("no encryption key set, OAuth tokens are stored in plaintext")
	}

	auth, err := google.NewAuthenticator(cfg.Google, google.WithMetrics(metrics))
	if err != nil {
		return err
	}
	fetcher := gmail.NewFetcher(gmail.WithLogger(logger), gmail.WithMetrics(metrics))
	health := server.NewHealthChecker(cfg.Mode)

	deps := server.Deps{
		Auth:    auth,
		Fetcher: fetcher,
		Health:  health,
		Logger:  logger,
		Metrics: metrics,
		Audit:   audit,
	}

	closeStore, err := openStores(cfg, box, logger, metrics, &deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("error closing store", logging.Err(err))
		}
	}()

	srv, err := server.New(ctx, server.Config{
		Mode:             cfg.Mode,
		FrontendURL:      cfg.FrontendURL,
		LocalFrontendURL: cfg.LocalFrontendURL,
		AllowedOrigins:   cfg.CORSOrigins,
		MessageLimit:     cfg.MessageLimit,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.ServesPrometheus() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	serverDone := make(chan error, 2)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverDone <- fmt.Errorf("metrics server stopped with error: %w", err)
			}
		}()
	}
	health.SetReady(true)
	logger.Info("inboxglance backend started",
		logging.KeyMode, string(cfg.Mode),
		"addr", cfg.HTTPAddr,
		"version", version)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
	case runErr = <-serverDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}

	if runErr == nil {
		logger.Info("servers gracefully stopped")
	}
	return runErr
}

// openStores builds the account store or the session manager for cfg.Mode
// and fills deps. The returned func releases the backing store.
func openStores(cfg *Config, box *secrets.Box, logger *slog.Logger, metrics *instrumentation.Metrics, deps *server.Deps) (func() error, error) {
	switch cfg.Mode {
	case server.ModeAccounts:
		store, err := openAccountStore(cfg, box)
		if err != nil {
			return nil, err
		}
		logger.Info("account store ready", "store", cfg.AccountStore)
		deps.Accounts = store
		return store.Close, nil

	case server.ModeSession:
		backend, err := openSessionBackend(cfg, box, logger, deps.Health)
		if err != nil {
			return nil, err
		}
		logger.Info("session store ready", "store", cfg.SessionStore, "ttl", cfg.SessionTTL)
		deps.Sessions = session.NewManager(backend,
			session.WithCookieName(cfg.SessionCookie),
			session.WithTTL(cfg.SessionTTL),
			session.WithLogger(logger),
			session.WithMetrics(metrics),
		)
		return backend.Close, nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func openAccountStore(cfg *Config, box *secrets.Box) (accounts.Store, error) {
	switch cfg.AccountStore {
	case StoreMemory:
		return accounts.NewMemoryStore(), nil
	case StoreSQLite:
		store, err := accounts.NewSQLiteStore(cfg.SQLitePath, box)
		if err != nil {
			return nil, fmt.Errorf("failed to open account store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown account store %q", cfg.AccountStore)
}

func openSessionBackend(cfg *Config, box *secrets.Box, logger *slog.Logger, health *server.HealthChecker) (session.Backend, error) {
	switch cfg.SessionStore {
	case StoreMemory:
		return session.NewMemoryBackend(cfg.SessionTTL, logger), nil
	case StoreValkey:
		backend, err := session.NewValkeyBackend(cfg.Valkey, box)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		health.AddCheck(StoreValkey, backend.Ping)
		return backend, nil
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
}
