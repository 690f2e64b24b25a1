// Package server exposes the HTTP API consumed by the inbox frontend.
//
// # Modes
//
// The same router serves one of two modes:
//   - accounts: any number of Google accounts are connected and kept in an
//     accounts.Store; GET /api/emails refreshes all of them.
//   - session: one user per browser session, tracked by a session.Manager;
//     GET /api/emails reads only that user's inbox.
//
// # Endpoints
//
//	GET    /                           liveness text
//	GET    /api/auth/google            redirect to the Google consent screen
//	GET    /api/auth/google/callback   finish the OAuth handshake
//	GET    /api/emails                 newest messages per account
//	DELETE /api/emails/{email}         disconnect an account (accounts mode)
//	POST   /api/logout                 end the session (session mode)
//	GET    /healthz, /readyz, /healthz/detailed
//
// Errors returned to clients are generic. The underlying error is logged
// with the user's email reduced to a hash.
//
// MetricsServer serves Prometheus metrics on a separate listener.
package server
