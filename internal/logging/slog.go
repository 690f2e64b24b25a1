package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

// Attribute keys shared by the request middleware, handlers and stores.
const (
	KeyOperation  = "operation"
	KeyMode       = "mode"
	KeyRoute      = "route"
	KeyUserHash   = "user_hash"
	KeyUserDomain = "user_domain"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyRequestID  = "request_id"
)

// Status values. instrumentation imports this package and mirrors them.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithMode returns a logger tagged with the server mode (accounts or session).
func WithMode(logger *slog.Logger, mode string) *slog.Logger {
	return logger.With(slog.String(KeyMode, mode))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Route returns a slog attribute for a matched HTTP route pattern.
func Route(pattern string) slog.Attr {
	return slog.String(KeyRoute, pattern)
}

// RequestID returns a slog attribute for the request correlation ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// A nil error yields an empty group, which slog drops from the output, so
// Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// Entries stay correlatable without exposing the address.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "user:" + hex.EncodeToString(hash[:8])
}

// UserHash returns a slog attribute with the anonymized user email.
//
//	logger.Info("account connected", logging.UserHash(email))
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeEmail(email))
}

// TokenState summarizes an OAuth token set for debug logs: whether a
// refresh token is present and when the access token expires.
func TokenState(hasRefresh bool, expiry time.Time) slog.Attr {
	return slog.Group("token",
		slog.Bool("refresh", hasRefresh),
		slog.Time("expiry", expiry))
}

// ExtractDomain returns the lowercased part after the single "@" of an
// address, or "" when the address is malformed.
func ExtractDomain(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return strings.ToLower(domain)
}

// Domain is the mail domain as a low-cardinality stand-in for the address.
func Domain(email string) slog.Attr {
	return slog.String(KeyUserDomain, ExtractDomain(email))
}
