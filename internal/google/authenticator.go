package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/inboxglance/internal/instrumentation"
)

// OAuthConfig holds the client credentials and the two redirect URLs.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the deployed callback URL.
	RedirectURL string
	// LocalRedirectURL is used for requests to localhost. Empty falls back
	// to RedirectURL.
	LocalRedirectURL string
}

// Validate checks the fields needed to talk to Google.
func (c OAuthConfig) Validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("google client ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("google client secret is required"))
	}
	if c.RedirectURL == "" {
		errs = append(errs, errors.New("google redirect URL is required"))
	}
	return errors.Join(errs...)
}

// Authenticator performs the authorization-code flow for one OAuth client.
type Authenticator struct {
	config       OAuthConfig
	endpoint     oauth2.Endpoint
	userinfoOpts []option.ClientOption
	metrics      *instrumentation.Metrics
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithEndpoint overrides Google's authorization and token endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(a *Authenticator) {
		a.endpoint = endpoint
	}
}

// WithUserinfoOptions appends client options for the userinfo service.
func WithUserinfoOptions(opts ...option.ClientOption) Option {
	return func(a *Authenticator) {
		a.userinfoOpts = append(a.userinfoOpts, opts...)
	}
}

// WithMetrics records token exchanges and userinfo lookups on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

// NewAuthenticator validates cfg and returns an Authenticator.
func NewAuthenticator(cfg OAuthConfig, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Authenticator{
		config:   cfg,
		endpoint: google.Endpoint,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RedirectURL returns the callback URL for a local or deployed request.
func (a *Authenticator) RedirectURL(local bool) string {
	if local && a.config.LocalRedirectURL != "" {
		return a.config.LocalRedirectURL
	}
	return a.config.RedirectURL
}

func (a *Authenticator) oauthConfig(redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = a.config.RedirectURL
	}
	return &oauth2.Config{
		ClientID:     a.config.ClientID,
		ClientSecret: a.config.ClientSecret,
		Endpoint:     a.endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}

// AuthCodeURL returns the consent URL. It asks for offline access and forces
// the consent prompt so Google hands out a refresh token every time.
func (a *Authenticator) AuthCodeURL(state, redirectURL string) string {
	return a.oauthConfig(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token set. redirectURL must
// match the one the consent URL was built with.
func (a *Authenticator) Exchange(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationExchange)
	defer span.End()

	start := time.Now()
	tok, err := a.oauthConfig(redirectURL).Exchange(ctx, code)
	a.record(ctx, instrumentation.OperationExchange, "", err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	return tok, nil
}

// TokenSource re-derives a refreshing token source from a stored token set.
func (a *Authenticator) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return a.oauthConfig("").TokenSource(ctx, tok)
}

// Email resolves the profile email of the account that owns tok.
func (a *Authenticator) Email(ctx context.Context, tok *oauth2.Token) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo)
	defer span.End()

	opts := append([]option.ClientOption{option.WithTokenSource(a.TokenSource(ctx, tok))}, a.userinfoOpts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	start := time.Now()
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err == nil && info.Email == "" {
		err = errors.New("userinfo response has no email")
	}
	email := ""
	if info != nil {
		email = info.Email
	}
	a.record(ctx, instrumentation.OperationUserinfo, email, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to get user profile: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	return email, nil
}

func (a *Authenticator) record(ctx context.Context, operation, email string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceUserinfo, operation, status, email, d)
}
