// Package google runs the OAuth2 authorization-code handshake with Google.
//
// An Authenticator builds consent URLs that ask for offline access, exchanges
// the returned code for a token set, resolves the profile email of that token
// set, and turns a stored token set back into a refreshing token source.
//
// Both redirect URLs (deployed and local) are configured up front; callers
// pick one per request and must pass the same one to AuthCodeURL and
// Exchange.
package google
