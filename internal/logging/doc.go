// Package logging provides structured logging utilities for inboxglance.
//
// All logging goes through the standard library's slog. This package builds
// the process logger and centralizes attribute naming so that every log line
// uses the same keys.
//
// # Usage Patterns
//
// Build the process logger once at startup:
//
//	logger, err := logging.New(logging.Options{Level: "debug", Format: "json"})
//
// Tag a logger for an operation:
//
//	logger := logging.WithOperation(slog.Default(), "inbox.refresh")
//	logger.Info("refreshed inbox", logging.Status(logging.StatusSuccess))
//
// Never log raw email addresses or tokens:
//
//	logger.Info("account connected", logging.UserHash(email))
//	logger.Debug("token received", logging.TokenState(tok.RefreshToken != "", tok.Expiry))
package logging
