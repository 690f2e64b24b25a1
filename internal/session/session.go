package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/inboxglance/internal/secrets"
)

// DefaultTTL is the sliding inactivity window of a session.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by a Backend for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// User is the identity stored in a session.
type User struct {
	Email string        `json:"email"`
	Token *oauth2.Token `json:"token"`
}

// Backend stores users by session ID.
type Backend interface {
	// Load returns the user of session id and extends its expiry.
	// It returns ErrNotFound when the session is unknown or expired.
	Load(ctx context.Context, id string) (*User, error)
	// Save stores u under id, replacing any previous user.
	Save(ctx context.Context, id string, u User) error
	// Delete removes session id. Deleting an unknown session succeeds.
	Delete(ctx context.Context, id string) error
	Close() error
}

// ExpiryNotifier is implemented by backends that drop idle sessions
// themselves and can report how many they dropped.
type ExpiryNotifier interface {
	OnExpire(fn func(n int))
}

// IsLocalRequest reports whether r was addressed to localhost or 127.0.0.1.
func IsLocalRequest(r *http.Request) bool {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return host == "localhost" || host == "127.0.0.1"
}

func encodeUser(box *secrets.Box, u User) (string, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}
	sealed, err := box.Seal(raw)
	if err != nil {
		return "", fmt.Errorf("sealing session: %w", err)
	}
	return sealed, nil
}

func decodeUser(box *secrets.Box, payload string) (*User, error) {
	raw, err := box.Open(payload)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &u, nil
}
