package session

import (
	"context"
	"time"
)

// Row mirrors the persisted session record.
type Row struct {
	ID         string
	IdentityID string
	TokenHash  string

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Store abstracts persistence for session state.
type Store interface {
	// Create creates a new session row and returns its id.
	Create(ctx context.Context, now time.Time, identityID, tokenHash string, expiresAt time.Time) (sessionID string, err error)

	// GetByTokenHash loads a session row by credential hash.
	// Returns ErrSessionNotFound when no row matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (Row, error)

	// Touch updates last_used_at for a session (best-effort).
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Revoke revokes a single session (logout).
	Revoke(ctx context.Context, now time.Time, sessionID string) error
}
