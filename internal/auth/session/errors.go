package session

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is the umbrella error for every validation failure.
// Callers that only care about "admit or refuse" match on this one.
var ErrUnauthenticated = errors.New("session: unauthenticated")

var (
	// ErrSessionNotFound is returned when no session matches the credential.
	ErrSessionNotFound = fmt.Errorf("%w: session not found", ErrUnauthenticated)

	// ErrSessionExpired is returned when the session exists but has expired.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrUnauthenticated)

	// ErrSessionRevoked is returned when the session was revoked (logout).
	ErrSessionRevoked = fmt.Errorf("%w: session revoked", ErrUnauthenticated)
)
