package server

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teemow/inboxglance/internal/accounts"
	"github.com/teemow/inboxglance/internal/gmail"
	"github.com/teemow/inboxglance/internal/instrumentation"
	"github.com/teemow/inboxglance/internal/logging"
	"github.com/teemow/inboxglance/internal/session"
)

// Client-facing messages. Details stay in the server log.
const (
	msgRunning       = "inboxglance backend is running"
	msgMissingCode   = "Missing authorization code."
	msgAuthFailed    = "Authentication failed."
	msgNotLoggedIn   = "Not logged in"
	msgFetchFailed   = "Failed to fetch emails"
	msgRemoveFailed  = "Failed to remove account"
	msgLogoutFailed  = "Failed to log out"
	msgSessionFailed = "Failed to read session"
	inboxPath        = "/inbox"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, msgRunning)
}

// handleAuthStart sends the browser to Google's consent screen.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	redirectURL := s.auth.RedirectURL(session.IsLocalRequest(r))
	http.Redirect(w, r, s.auth.AuthCodeURL("", redirectURL), http.StatusFound)
}

// handleAuthCallback finishes the handshake: exchange the code, resolve the
// account's email, record the identity, and return to the frontend.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.WithOperation(s.logger, "auth.callback")

	code := r.URL.Query().Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, msgMissingCode)
		return
	}

	local := session.IsLocalRequest(r)
	tok, err := s.auth.Exchange(ctx, code, s.auth.RedirectURL(local))
	if err != nil {
		s.callbackFailed(w, r, logger, "token exchange failed", err)
		return
	}

	email, err := s.auth.Email(ctx, tok)
	if err != nil {
		s.callbackFailed(w, r, logger, "profile lookup failed", err)
		return
	}
	logger = logger.With(logging.UserHash(email))
	logger.DebugContext(ctx, "token received", logging.TokenState(tok.RefreshToken != "", tok.Expiry))

	switch s.config.Mode {
	case ModeAccounts:
		messages, err := s.fetcher.FetchRecent(ctx, s.auth.TokenSource(ctx, tok), s.config.MessageLimit)
		if err != nil {
			s.callbackFailed(w, r, logger, "initial inbox fetch failed", err)
			return
		}

		inserted, err := s.accounts.UpsertIfAbsent(ctx, accounts.Account{Email: email, Token: tok, Messages: messages})
		if err != nil {
			s.auditFor(r, instrumentation.AuditAccountConnected, email, err)
			s.callbackFailed(w, r, logger, "storing account failed", err)
			return
		}
		if inserted {
			s.metrics.AddConnectedAccounts(ctx, 1)
			s.auditFor(r, instrumentation.AuditAccountConnected, email, nil)
		} else {
			s.auditFor(r, instrumentation.AuditAccountExisting, email, nil)
		}

	case ModeSession:
		if err := s.sessions.Login(w, r, session.User{Email: email, Token: tok}); err != nil {
			s.auditFor(r, instrumentation.AuditSessionLogin, email, err)
			s.callbackFailed(w, r, logger, "session login failed", err)
			return
		}
		s.auditFor(r, instrumentation.AuditSessionLogin, email, nil)
	}

	logger.Info("account authenticated", logging.Status(logging.StatusSuccess))
	http.Redirect(w, r, s.frontendURL(local)+inboxPath, http.StatusFound)
}

func (s *Server) callbackFailed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg,
		logging.Status(logging.StatusError),
		logging.RequestID(middleware.GetReqID(r.Context())),
		logging.Err(err))
	writeText(w, http.StatusInternalServerError, msgAuthFailed)
}

// handleAccountEmails refreshes every connected account's inbox.
func (s *Server) handleAccountEmails(w http.ResponseWriter, r *http.Request) {
	inboxes, err := accounts.RefreshAll(r.Context(), s.accounts, s.auth, s.fetcher, s.config.MessageLimit)
	if err != nil {
		s.logFailure(r, "emails.refresh_all", "", err)
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, inboxes)
}

// handleSessionEmails reads the inbox of the session's user.
func (s *Server) handleSessionEmails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := s.sessions.Current(w, r)
	if err != nil {
		s.logFailure(r, "emails.session", "", err)
		writeError(w, http.StatusInternalServerError, msgSessionFailed)
		return
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}

	messages, err := s.fetcher.FetchRecent(ctx, s.auth.TokenSource(ctx, u.Token), s.config.MessageLimit)
	if err != nil {
		s.logFailure(r, "emails.session", u.Email, err)
		writeError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, []gmail.Inbox{{Email: u.Email, Messages: messages}})
}

// handleRemoveAccount disconnects an account. Unknown emails succeed.
func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		email = chi.URLParam(r, "email")
	}

	removed, err := s.accounts.Remove(ctx, email)
	if err != nil {
		s.auditFor(r, instrumentation.AuditAccountRemoved, email, err)
		s.logFailure(r, "accounts.remove", email, err)
		writeError(w, http.StatusInternalServerError, msgRemoveFailed)
		return
	}
	if removed {
		s.metrics.AddConnectedAccounts(ctx, -1)
		s.auditFor(r, instrumentation.AuditAccountRemoved, email, nil)
	}
	writeSuccess(w)
}

// handleLogout ends the session and clears its cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	u, err := s.sessions.Logout(w, r)
	email := ""
	if u != nil {
		email = u.Email
	}
	if err != nil {
		s.auditFor(r, instrumentation.AuditSessionLogout, email, err)
		s.logFailure(r, "session.logout", email, err)
		writeError(w, http.StatusInternalServerError, msgLogoutFailed)
		return
	}
	if u != nil {
		s.auditFor(r, instrumentation.AuditSessionLogout, email, nil)
	}
	writeSuccess(w)
}

func (s *Server) logFailure(r *http.Request, operation, email string, err error) {
	attrs := []any{
		logging.Operation(operation),
		logging.Status(logging.StatusError),
		logging.RequestID(middleware.GetReqID(r.Context())),
		logging.Err(err),
	}
	if email != "" {
		attrs = append(attrs, logging.UserHash(email))
	}
	s.logger.ErrorContext(r.Context(), "request failed", attrs...)
}

func (s *Server) auditFor(r *http.Request, action, email string, err error) {
	event := instrumentation.NewAuditEvent(r.Context(), action, email)
	event.RemoteIP = r.RemoteAddr
	event.RequestID = middleware.GetReqID(r.Context())
	if err != nil {
		event.Failed(err)
	}
	s.audit.Log(event)
}
