// Package session implements the relay's session model.
//
// A session is created when the OAuth callback completes and is referenced by
// an opaque cookie token. Only the SHA-256 hash (hex) of that token is ever
// persisted; the plain token lives in the client cookie and nowhere else.
//
// Validation is a pure lookup: no side effects beyond an optional best-effort
// last_used_at touch performed by callers. Expired or revoked sessions are
// indistinguishable from missing ones at the API boundary; all of them
// unwrap to ErrUnauthenticated.
package session
