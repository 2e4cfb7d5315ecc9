// Package identity holds the relay's canonical security principal: the user
// record provisioned from a verified OAuth profile.
//
// The relay references identities, it does not own the authentication
// handshake. Provisioning happens on first successful exchange; display name,
// email and avatar are refreshed on re-auth.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no identity matches the lookup.
var ErrNotFound = errors.New("identity: not found")

// Identity is a chat user as seen by the relay.
//
// ProviderID is the stable subject issued by the external identity provider
// (the Google account id in the reference deployment). ID is our own ULID and
// is the only key other subsystems reference.
type Identity struct {
	ID         string
	ProviderID string

	DisplayName string
	Email       string
	AvatarURL   string

	CreatedAt time.Time
}

// Profile is a verified identity claim returned by the OAuth exchange.
type Profile struct {
	ProviderID  string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Store abstracts identity persistence.
type Store interface {
	// UpsertByProvider creates the identity on first authentication and
	// refreshes DisplayName/Email/AvatarURL on subsequent ones.
	// ID and CreatedAt are immutable once assigned.
	UpsertByProvider(ctx context.Context, now time.Time, p Profile) (Identity, error)

	// GetByID loads an identity by its internal id.
	GetByID(ctx context.Context, id string) (Identity, error)
}
