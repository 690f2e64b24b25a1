package instrumentation

import (
	"context"
	"log/slog"

	"github.com/teemow/inboxglance/internal/logging"
)

// Audit actions.
const (
	AuditAccountConnected = "account_connected"
	AuditAccountExisting  = "account_already_connected"
	AuditAccountRemoved   = "account_removed"
	AuditSessionLogin     = "session_login"
	AuditSessionLogout    = "session_logout"
)

// AuditEvent is one identity-changing action: an account connected or
// removed, a session created or destroyed.
type AuditEvent struct {
	Action    string
	Email     string
	RemoteIP  string
	RequestID string
	TraceID   string
	Success   bool
	Err       error
}

// NewAuditEvent starts an event for action and picks up the trace ID from ctx.
func NewAuditEvent(ctx context.Context, action, email string) *AuditEvent {
	return &AuditEvent{
		Action:  action,
		Email:   email,
		TraceID: GetTraceID(ctx),
		Success: true,
	}
}

// Failed marks the event failed with err.
func (e *AuditEvent) Failed(err error) *AuditEvent {
	e.Success = false
	e.Err = err
	return e
}

func (e *AuditEvent) attrs(includePII bool) []any {
	args := []any{
		slog.String("action", e.Action),
		slog.Bool("success", e.Success),
	}
	if includePII {
		args = append(args, slog.String("user", e.Email))
	} else {
		args = append(args, logging.UserHash(e.Email), logging.Domain(e.Email))
	}
	if e.RemoteIP != "" {
		args = append(args, slog.String("remote_ip", e.RemoteIP))
	}
	if e.RequestID != "" {
		args = append(args, logging.RequestID(e.RequestID))
	}
	if e.TraceID != "" {
		args = append(args, slog.String("trace_id", e.TraceID))
	}
	args = append(args, logging.Err(e.Err))
	return args
}

// AuditLogger writes AuditEvents to a dedicated slog stream.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger returns an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("stream", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes e. A nil AuditLogger discards events.
func (a *AuditLogger) Log(e *AuditEvent) {
	if a == nil || !a.enabled || e == nil {
		return
	}
	if e.Success {
		a.logger.Info("audit", e.attrs(a.includePII)...)
		return
	}
	a.logger.Warn("audit", e.attrs(a.includePII)...)
}
