package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxglance/internal/instrumentation"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "sid"

// Manager binds users to browser sessions through a cookie.
type Manager struct {
	backend    Backend
	cookieName string
	ttl        time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	newID      func() string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithTTL sets the cookie lifetime. It should match the backend's timeout.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records logins, logouts and, for backends implementing
// ExpiryNotifier, expirations on the active_sessions gauge.
func WithMetrics(metrics *instrumentation.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager returns a Manager storing users in backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:    backend,
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
		logger:     slog.Default(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if notifier, ok := backend.(ExpiryNotifier); ok {
		notifier.OnExpire(func(n int) {
			m.metrics.RemoveActiveSessions(context.Background(), n)
		})
	}
	return m
}

// Login stores u as the user of the request's session, replacing any user
// already signed in there. A request without a live session gets a fresh
// session ID.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, u User) error {
	ctx := r.Context()

	id, existing, err := m.lookup(ctx, r)
	if err != nil {
		return err
	}
	if existing == nil {
		id = m.newID()
	}

	if err := m.backend.Save(ctx, id, u); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if existing == nil {
		m.metrics.IncrementActiveSessions(ctx)
	}

	m.setCookie(w, r, id)
	return nil
}

// Current returns the signed-in user, or nil when the request has no live
// session. A hit extends the session and re-issues the cookie.
func (m *Manager) Current(w http.ResponseWriter, r *http.Request) (*User, error) {
	id, u, err := m.lookup(r.Context(), r)
	if err != nil || u == nil {
		return nil, err
	}

	m.setCookie(w, r, id)
	return u, nil
}

// Logout destroys the request's session and clears the cookie. It returns
// the user that was signed in, if any. The cookie is left in place when the
// backend fails to delete the session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) (*User, error) {
	ctx := r.Context()

	id, u, err := m.lookup(ctx, r)
	if err != nil {
		return nil, err
	}

	if id != "" {
		if err := m.backend.Delete(ctx, id); err != nil {
			return u, fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	if u != nil {
		m.metrics.DecrementActiveSessions(ctx)
	}

	m.clearCookie(w, r)
	return u, nil
}

// lookup returns the session ID carried by r and its user. Both are empty
// when the request has no cookie; the user is nil when the session is gone.
func (m *Manager) lookup(ctx context.Context, r *http.Request) (string, *User, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", nil, nil
	}

	u, err := m.backend.Load(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		return c.Value, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load session: %w", err)
	}
	return c.Value, u, nil
}

func (m *Manager) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	// The deployed frontend runs on another site, so the cookie must be
	// sent cross-site, which browsers only allow for Secure cookies.
	if !IsLocalRequest(r) {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, m.cookie(r, id, int(m.ttl/time.Second)))
}

func (m *Manager) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, m.cookie(r, "", -1))
}
