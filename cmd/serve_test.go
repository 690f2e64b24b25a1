package cmd

import (
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxglance/internal/accounts"
	"github.com/teemow/inboxglance/internal/google"
	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/secrets"
	"github.com/teemow/inboxglance/internal/server"
	"github.com/teemow/inboxglance/internal/session"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "no values",
			input:    nil,
			expected: nil,
		},
		{
			name:     "single value",
			input:    []string{"http://localhost:3000"},
			expected: []string{"http://localhost:3000"},
		},
		{
			name:     "values from a flag",
			input:    []string{"https://app.example.com", "http://localhost:3000"},
			expected: []string{"https://app.example.com", "http://localhost:3000"},
		},
		{
			name:     "comma separated environment value",
			input:    []string{"https://app.example.com, http://localhost:3000"},
			expected: []string{"https://app.example.com", "http://localhost:3000"},
		},
		{
			name:     "trailing and repeated commas",
			input:    []string{",https://app.example.com,,", " "},
			expected: []string{"https://app.example.com"},
		},
		{
			name:     "only commas and spaces",
			input:    []string{",  , , "},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

// clearServeEnv unsets every bound variable so the host environment does not
// leak into config tests.
func clearServeEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		if value, ok := os.LookupEnv(env); ok {
			t.Setenv(env, value)
			require.NoError(t, os.Unsetenv(env))
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadTestConfig(t *testing.T, args ...string) *Config {
	t.Helper()
	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags(args))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearServeEnv(t)

	cfg := loadTestConfig(t)

	assert.Equal(t, server.ModeAccounts, cfg.Mode)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:5000/api/auth/google/callback", cfg.Google.LocalRedirectURL)
	assert.Equal(t, "http://localhost:3000", cfg.LocalFrontendURL)
	assert.Equal(t, 5, cfg.MessageLimit)
	assert.Equal(t, StoreMemory, cfg.AccountStore)
	assert.Equal(t, StoreMemory, cfg.SessionStore)
	assert.Equal(t, session.DefaultTTL, cfg.SessionTTL)
	assert.Equal(t, session.DefaultCookieName, cfg.SessionCookie)
	assert.Equal(t, session.DefaultKeyPrefix, cfg.Valkey.KeyPrefix)
	assert.Nil(t, cfg.EncryptionKey)
	assert.Nil(t, cfg.CORSOrigins)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, server.DefaultMetricsAddr, cfg.Metrics.Addr)
	assert.Equal(t, instrumentation.ExporterPrometheus, cfg.Instrumentation.MetricsExporter)
	assert.Equal(t, version, cfg.Instrumentation.ServiceVersion)
}

func TestLoadConfig_Environment(t *testing.T) {
	clearServeEnv(t)
	key := base64.StdEncoding.EncodeToString(make([]byte, secrets.KeySize))

	t.Setenv("MODE", "Session")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "https://api.example.com/api/auth/google/callback")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("MESSAGE_LIMIT", "10")
	t.Setenv("SESSION_STORE", "valkey")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_TLS_ENABLED", "true")
	t.Setenv("VALKEY_DB", "3")
	t.Setenv("ENCRYPTION_KEY", key)
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("AUDIT_INCLUDE_PII", "true")

	cfg := loadTestConfig(t)

	assert.Equal(t, server.ModeSession, cfg.Mode)
	assert.Equal(t, google.OAuthConfig{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURL:      "https://api.example.com/api/auth/google/callback",
		LocalRedirectURL: "http://localhost:5000/api/auth/google/callback",
	}, cfg.Google)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL, "trailing slash is trimmed")
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.MessageLimit)
	assert.Equal(t, StoreValkey, cfg.SessionStore)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2*time.Hour, cfg.Valkey.TTL)
	assert.Equal(t, "valkey:6379", cfg.Valkey.URL)
	assert.True(t, cfg.Valkey.TLSEnabled)
	assert.Equal(t, 3, cfg.Valkey.DB)
	assert.Len(t, cfg.EncryptionKey, secrets.KeySize)
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Instrumentation.Audit.IncludePII)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	clearServeEnv(t)
	t.Setenv("MODE", "session")
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := loadTestConfig(t, "--mode", "accounts", "--http-addr", ":8000", "--debug")

	assert.Equal(t, server.ModeAccounts, cfg.Mode)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	clearServeEnv(t)
	path := filepath.Join(t.TempDir(), "inboxglance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account-store: sqlite\nsqlite-path: /data/accounts.db\nmessage-limit: 8\n"), 0o600))
	t.Setenv("MESSAGE_LIMIT", "12")

	cfg := loadTestConfig(t, "--config", path)

	assert.Equal(t, StoreSQLite, cfg.AccountStore)
	assert.Equal(t, "/data/accounts.db", cfg.SQLitePath)
	assert.Equal(t, 12, cfg.MessageLimit, "environment wins over the config file")
}

func TestLoadConfig_Errors(t *testing.T) {
	clearServeEnv(t)

	t.Run("missing config file", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
		_, err := loadConfig(cmd)
		assert.Error(t, err)
	})

	t.Run("bad encryption key", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--encryption-key", "not base64!"}))
		_, err := loadConfig(cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption key")
	})
}

func validConfig() *Config {
	return &Config{
		Mode: server.ModeAccounts,
		Google: google.OAuthConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "https://api.example.com/api/auth/google/callback",
		},
		FrontendURL:     "https://app.example.com",
		MessageLimit:    5,
		AccountStore:    StoreMemory,
		SessionStore:    StoreMemory,
		SessionTTL:      time.Hour,
		Instrumentation: instrumentation.DefaultConfig(),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid accounts", modify: func(*Config) {}},
		{name: "valid session", modify: func(c *Config) { c.Mode = server.ModeSession }},
		{name: "unknown mode", modify: func(c *Config) { c.Mode = "both" }, wantErr: "mode"},
		{name: "missing client id", modify: func(c *Config) { c.Google.ClientID = "" }, wantErr: "client ID"},
		{name: "missing frontend", modify: func(c *Config) { c.FrontendURL = "" }, wantErr: "frontend URL"},
		{name: "zero limit", modify: func(c *Config) { c.MessageLimit = 0 }, wantErr: "message limit"},
		{
			name:    "sqlite without path",
			modify:  func(c *Config) { c.AccountStore = StoreSQLite },
			wantErr: "sqlite path",
		},
		{
			name:    "unknown account store",
			modify:  func(c *Config) { c.AccountStore = "postgres" },
			wantErr: "unknown account store",
		},
		{
			name: "account store ignored in session mode",
			modify: func(c *Config) {
				c.Mode = server.ModeSession
				c.AccountStore = "postgres"
			},
		},
		{
			name: "valkey without url",
			modify: func(c *Config) {
				c.Mode = server.ModeSession
				c.SessionStore = StoreValkey
			},
			wantErr: "valkey URL",
		},
		{
			name: "zero session ttl",
			modify: func(c *Config) {
				c.Mode = server.ModeSession
				c.SessionTTL = 0
			},
			wantErr: "session TTL",
		},
		{name: "short key", modify: func(c *Config) { c.EncryptionKey = []byte("short") }, wantErr: "encryption key"},
		{
			name:    "bad exporter",
			modify:  func(c *Config) { c.Instrumentation.MetricsExporter = "graphite" },
			wantErr: "metrics exporter",
		},
		{
			name: "exporter ignored when instrumentation is off",
			modify: func(c *Config) {
				c.Instrumentation.Enabled = false
				c.Instrumentation.MetricsExporter = "graphite"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenStores(t *testing.T) {
	t.Run("accounts with sqlite", func(t *testing.T) {
		cfg := validConfig()
		cfg.AccountStore = StoreSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "accounts.db")

		deps := server.Deps{Health: server.NewHealthChecker(cfg.Mode)}
		closeStore, err := openStores(cfg, nil, discardLogger(), nil, &deps)
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeStore() })

		assert.IsType(t, &accounts.SQLiteStore{}, deps.Accounts)
		assert.Nil(t, deps.Sessions)
	})

	t.Run("accounts in memory", func(t *testing.T) {
		deps := server.Deps{}
		closeStore, err := openStores(validConfig(), nil, discardLogger(), nil, &deps)
		require.NoError(t, err)
		assert.NoError(t, closeStore())
		assert.IsType(t, &accounts.MemoryStore{}, deps.Accounts)
	})

	t.Run("session in memory", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = server.ModeSession

		deps := server.Deps{Health: server.NewHealthChecker(cfg.Mode)}
		closeStore, err := openStores(cfg, nil, discardLogger(), nil, &deps)
		require.NoError(t, err)
		assert.NoError(t, closeStore())
		assert.NotNil(t, deps.Sessions)
		assert.Nil(t, deps.Accounts)
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "both"
		_, err := openStores(cfg, nil, discardLogger(), nil, &server.Deps{})
		assert.Error(t, err)
	})
}
