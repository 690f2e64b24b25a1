package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/inboxglance/internal/gmail"
	"github.com/teemow/inboxglance/internal/google"
	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/secrets"
	"github.com/teemow/inboxglance/internal/server"
	"github.com/teemow/inboxglance/internal/session"
)

// Storage backend names.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreValkey = "valkey"
)

// Config is the resolved serve configuration.
type Config struct {
	Mode      server.Mode
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	Google google.OAuthConfig

	FrontendURL      string
	LocalFrontendURL string
	CORSOrigins      []string
	MessageLimit     int

	// AccountStore is memory or sqlite (accounts mode).
	AccountStore string
	SQLitePath   string

	// SessionStore is memory or valkey (session mode).
	SessionStore  string
	SessionTTL    time.Duration
	SessionCookie string
	Valkey        session.ValkeyConfig

	// EncryptionKey seals stored tokens when set. 32 bytes.
	EncryptionKey []byte

	Metrics         MetricsConfig
	Instrumentation instrumentation.Config
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// Validate checks the combination of settings before anything is started.
func (c *Config) Validate() error {
	var errs []error

	if _, err := server.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if err := c.Google.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.FrontendURL == "" {
		errs = append(errs, errors.New("frontend URL is required"))
	}
	if c.MessageLimit <= 0 {
		errs = append(errs, fmt.Errorf("message limit must be positive, got %d", c.MessageLimit))
	}

	switch c.Mode {
	case server.ModeAccounts:
		switch c.AccountStore {
		case StoreMemory:
		case StoreSQLite:
			if c.SQLitePath == "" {
				errs = append(errs, errors.New("sqlite path is required for the sqlite account store"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown account store %q (want memory or sqlite)", c.AccountStore))
		}
	case server.ModeSession:
		switch c.SessionStore {
		case StoreMemory:
		case StoreValkey:
			if c.Valkey.URL == "" {
				errs = append(errs, errors.New("valkey URL is required for the valkey session store"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown session store %q (want memory or valkey)", c.SessionStore))
		}
		if c.SessionTTL <= 0 {
			errs = append(errs, fmt.Errorf("session TTL must be positive, got %s", c.SessionTTL))
		}
	}

	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != secrets.KeySize {
		errs = append(errs, fmt.Errorf("encryption key must be %d bytes, got %d", secrets.KeySize, len(c.EncryptionKey)))
	}
	if c.Instrumentation.Enabled {
		if err := c.Instrumentation.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// envBindings maps flag names to the environment variables that can set them.
var envBindings = map[string]string{
	"mode":                      "MODE",
	"http-addr":                 "HTTP_ADDR",
	"log-level":                 "LOG_LEVEL",
	"log-format":                "LOG_FORMAT",
	"google-client-id":          "GOOGLE_CLIENT_ID",
	"google-client-secret":      "GOOGLE_CLIENT_SECRET",
	"google-redirect-url":       "GOOGLE_REDIRECT_URL",
	"google-local-redirect-url": "GOOGLE_LOCAL_REDIRECT_URL",
	"frontend-url":              "FRONTEND_URL",
	"local-frontend-url":        "LOCAL_FRONTEND_URL",
	"cors-origins":              "CORS_ORIGINS",
	"message-limit":             "MESSAGE_LIMIT",
	"account-store":             "ACCOUNT_STORE",
	"sqlite-path":               "SQLITE_PATH",
	"session-store":             "SESSION_STORE",
	"session-ttl":               "SESSION_TTL",
	"session-cookie":            "SESSION_COOKIE_NAME",
	"valkey-url":                "VALKEY_URL",
	"valkey-password":           "VALKEY_PASSWORD",
	"valkey-tls":                "VALKEY_TLS_ENABLED",
	"valkey-key-prefix":         "VALKEY_KEY_PREFIX",
	"valkey-db":                 "VALKEY_DB",
	"encryption-key":            "ENCRYPTION_KEY",
	"metrics-enabled":           "METRICS_ENABLED",
	"metrics-addr":              "METRICS_ADDR",
	"instrumentation-enabled":   "INSTRUMENTATION_ENABLED",
	"metrics-exporter":          "METRICS_EXPORTER",
	"tracing-exporter":          "TRACING_EXPORTER",
	"otlp-endpoint":             "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otlp-insecure":             "OTEL_EXPORTER_OTLP_INSECURE",
	"trace-sampling-rate":       "OTEL_TRACES_SAMPLER_ARG",
	"audit-enabled":             "AUDIT_ENABLED",
	"audit-include-pii":         "AUDIT_INCLUDE_PII",
}

// addServeFlags registers every serve flag with its default.
func addServeFlags(fs *pflag.FlagSet) {
	def := instrumentation.DefaultConfig()

	fs.String("config", "", "Optional YAML config file. Flags and environment variables override it.")
	fs.Bool("debug", false, "Enable debug logging (same as --log-level debug)")
	fs.String("mode", string(server.ModeAccounts), "Identity mode: accounts (many connected accounts) or session (one user per browser session)")
	fs.String("http-addr", ":5000", "HTTP server address")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")

	fs.String("google-client-id", "", "Google OAuth client ID")
	fs.String("google-client-secret", "", "Google OAuth client secret")
	fs.String("google-redirect-url", "", "OAuth callback URL of the deployed backend, e.g. https://api.example.com/api/auth/google/callback")
	fs.String("google-local-redirect-url", "http://localhost:5000/api/auth/google/callback", "OAuth callback URL used for requests to localhost")

	fs.String("frontend-url", "", "URL of the deployed frontend; the callback redirects to <frontend-url>/inbox")
	fs.String("local-frontend-url", "http://localhost:3000", "Frontend URL used for requests to localhost")
	fs.StringSlice("cors-origins", nil, "Origins allowed to call the API with credentials (default: both frontend URLs)")
	fs.Int("message-limit", gmail.DefaultLimit, "Number of newest messages fetched per inbox")

	fs.String("account-store", StoreMemory, "Account store for accounts mode: memory or sqlite")
	fs.String("sqlite-path", "inboxglance.db", "SQLite database file for the sqlite account store")

	fs.String("session-store", StoreMemory, "Session store for session mode: memory or valkey")
	fs.Duration("session-ttl", session.DefaultTTL, "Sliding session inactivity timeout")
	fs.String("session-cookie", session.DefaultCookieName, "Session cookie name")
	fs.String("valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379)")
	fs.String("valkey-password", "", "Valkey authentication password")
	fs.Bool("valkey-tls", false, "Enable TLS for Valkey connections")
	fs.String("valkey-key-prefix", session.DefaultKeyPrefix, "Prefix for session keys in Valkey")
	fs.Int("valkey-db", 0, "Valkey database number")

	fs.String("encryption-key", "", "AES-256 key sealing stored tokens (32 bytes, base64 encoded). Generate with: openssl rand -base64 32")

	fs.Bool("metrics-enabled", true, "Serve Prometheus metrics on a dedicated port")
	fs.String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")
	fs.Bool("instrumentation-enabled", def.Enabled, "Enable OpenTelemetry metrics and tracing")
	fs.String("metrics-exporter", def.MetricsExporter, "Metrics exporter: prometheus, otlp, stdout")
	fs.String("tracing-exporter", def.TracingExporter, "Tracing exporter: otlp, stdout, none")
	fs.String("otlp-endpoint", "", "OTLP collector host:port")
	fs.Bool("otlp-insecure", false, "Send OTLP over plain HTTP")
	fs.Float64("trace-sampling-rate", def.TraceSamplingRate, "Trace sampling ratio between 0.0 and 1.0")
	fs.Bool("audit-enabled", def.Audit.Enabled, "Emit audit events for account and session changes")
	fs.Bool("audit-include-pii", false, "Log full email addresses in audit events")
}

// newViper binds the command's flags and their environment variables.
// Precedence: flag, environment, config file, default.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

// loadConfig resolves a Config from flags, environment and config file.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:      server.Mode(strings.ToLower(v.GetString("mode"))),
		HTTPAddr:  v.GetString("http-addr"),
		LogLevel:  v.GetString("log-level"),
		LogFormat: v.GetString("log-format"),
		Google: google.OAuthConfig{
			ClientID:         v.GetString("google-client-id"),
			ClientSecret:     v.GetString("google-client-secret"),
			RedirectURL:      v.GetString("google-redirect-url"),
			LocalRedirectURL: v.GetString("google-local-redirect-url"),
		},
		FrontendURL:      strings.TrimSuffix(v.GetString("frontend-url"), "/"),
		LocalFrontendURL: strings.TrimSuffix(v.GetString("local-frontend-url"), "/"),
		CORSOrigins:      parseCommaSeparatedList(v.GetStringSlice("cors-origins")),
		MessageLimit:     v.GetInt("message-limit"),
		AccountStore:     strings.ToLower(v.GetString("account-store")),
		SQLitePath:       v.GetString("sqlite-path"),
		SessionStore:     strings.ToLower(v.GetString("session-store")),
		SessionTTL:       v.GetDuration("session-ttl"),
		SessionCookie:    v.GetString("session-cookie"),
		Valkey: session.ValkeyConfig{
			URL:        v.GetString("valkey-url"),
			Password:   v.GetString("valkey-password"),
			TLSEnabled: v.GetBool("valkey-tls"),
			KeyPrefix:  v.GetString("valkey-key-prefix"),
			DB:         v.GetInt("valkey-db"),
			TTL:        v.GetDuration("session-ttl"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics-enabled"),
			Addr:    v.GetString("metrics-addr"),
		},
	}
	if v.GetBool("debug") {
		cfg.LogLevel = "debug"
	}

	if encoded := v.GetString("encryption-key"); encoded != "" {
		key, err := secrets.KeyFromBase64(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		cfg.EncryptionKey = key
	}

	instr := instrumentation.DefaultConfig()
	instr.ServiceVersion = version
	instr.Enabled = v.GetBool("instrumentation-enabled")
	instr.MetricsExporter = v.GetString("metrics-exporter")
	instr.TracingExporter = v.GetString("tracing-exporter")
	instr.OTLPEndpoint = v.GetString("otlp-endpoint")
	instr.OTLPInsecure = v.GetBool("otlp-insecure")
	instr.TraceSamplingRate = v.GetFloat64("trace-sampling-rate")
	instr.Audit.Enabled = v.GetBool("audit-enabled")
	instr.Audit.IncludePII = v.GetBool("audit-include-pii")
	cfg.Instrumentation = instr

	return cfg, nil
}

// parseCommaSeparatedList flattens values that may themselves hold
// comma-separated items, trimming whitespace and dropping empty entries.
// It returns nil when no values were given.
func parseCommaSeparatedList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
