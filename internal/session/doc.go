// Package session tracks the single signed-in user of a browser session.
//
// The Manager reads and writes an HttpOnly session cookie and keeps the user
// behind it in a Backend. Sessions expire after a sliding window of
// inactivity: every successful read pushes the expiry out again.
//
// Two backends exist. MemoryBackend keeps sessions in process and sweeps
// expired entries on a ticker. ValkeyBackend keeps them in Valkey so several
// replicas can share sessions, with payloads sealed by a secrets.Box.
package session
