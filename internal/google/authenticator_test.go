package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func testConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURL:      "https://api.example.com/api/auth/google/callback",
		LocalRedirectURL: "http://localhost:5000/api/auth/google/callback",
	}
}

// fakeGoogle serves a token endpoint and the userinfo endpoint.
type fakeGoogle struct {
	email        string
	failToken    bool
	failUserinfo bool
	lastForm     url.Values
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/token":
		_ = r.ParseForm()
		f.lastForm = r.PostForm
		if f.failToken {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	case "/oauth2/v2/userinfo":
		if f.failUserinfo {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"invalid token"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"1","email":"` + f.email + `","verified_email":true}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestAuthenticator(t *testing.T, fake *fakeGoogle) *Authenticator {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	a, err := NewAuthenticator(testConfig(),
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithUserinfoOptions(option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())),
	)
	require.NoError(t, err)
	return a
}

func TestOAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*OAuthConfig)
		wantErr string
	}{
		{name: "valid", modify: func(*OAuthConfig) {}},
		{name: "local redirect optional", modify: func(c *OAuthConfig) { c.LocalRedirectURL = "" }},
		{name: "missing client id", modify: func(c *OAuthConfig) { c.ClientID = "" }, wantErr: "client ID"},
		{name: "missing secret", modify: func(c *OAuthConfig) { c.ClientSecret = "" }, wantErr: "client secret"},
		{name: "missing redirect", modify: func(c *OAuthConfig) { c.RedirectURL = "" }, wantErr: "redirect URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
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

func TestAuthenticator_RedirectURL(t *testing.T) {
	a, err := NewAuthenticator(testConfig())
	require.NoError(t, err)

	assert.Equal(t, testConfig().LocalRedirectURL, a.RedirectURL(true))
	assert.Equal(t, testConfig().RedirectURL, a.RedirectURL(false))

	cfg := testConfig()
	cfg.LocalRedirectURL = ""
	a, err = NewAuthenticator(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.RedirectURL, a.RedirectURL(true))
}

func TestAuthenticator_AuthCodeURL(t *testing.T) {
	a, err := NewAuthenticator(testConfig())
	require.NoError(t, err)

	raw := a.AuthCodeURL("state-1", a.RedirectURL(true))
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, testConfig().LocalRedirectURL, q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/gmail.readonly")
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/gmail.send")
	assert.Contains(t, q.Get("scope"), "email")
}

func TestAuthenticator_Exchange(t *testing.T) {
	fake := &fakeGoogle{}
	a := newTestAuthenticator(t, fake)

	tok, err := a.Exchange(context.Background(), "code-1", a.RedirectURL(false))
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)

	assert.Equal(t, "code-1", fake.lastForm.Get("code"))
	assert.Equal(t, "authorization_code", fake.lastForm.Get("grant_type"))
	assert.Equal(t, testConfig().RedirectURL, fake.lastForm.Get("redirect_uri"))
}

func TestAuthenticator_ExchangeFailure(t *testing.T) {
	a := newTestAuthenticator(t, &fakeGoogle{failToken: true})

	_, err := a.Exchange(context.Background(), "bad-code", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to exchange authorization code")
}

func TestAuthenticator_Email(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeGoogle
		want    string
		wantErr bool
	}{
		{name: "resolves email", fake: &fakeGoogle{email: "jane@example.com"}, want: "jane@example.com"},
		{name: "userinfo rejected", fake: &fakeGoogle{email: "jane@example.com", failUserinfo: true}, wantErr: true},
		{name: "missing email", fake: &fakeGoogle{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthenticator(t, tt.fake)
			got, err := a.Email(context.Background(), &oauth2.Token{AccessToken: "access-1"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticator_TokenSourceRefreshes(t *testing.T) {
	fake := &fakeGoogle{}
	a := newTestAuthenticator(t, fake)

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-0", Expiry: time.Now().Add(-time.Hour)}
	tok, err := a.TokenSource(context.Background(), expired).Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh_token", fake.lastForm.Get("grant_type"))
	assert.Equal(t, "refresh-0", fake.lastForm.Get("refresh_token"))
}

func TestNewAuthenticator_InvalidConfig(t *testing.T) {
	_, err := NewAuthenticator(OAuthConfig{})
	assert.Error(t, err)
}
