package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Kabilan-0809/chat-application/internal/identity"
)

const (
	// DefaultTTL is how long an issued session lives without re-auth.
	DefaultTTL = 7 * 24 * time.Hour

	// Refuse pathological credentials before hashing them.
	maxCredentialLen = 4096
)

// Service implements the high-level session operations: issue at OAuth
// callback time, validate at connection-admission time, revoke at logout.
type Service struct {
	log        *slog.Logger
	store      Store
	identities identity.Store

	ttl        time.Duration
	tokenBytes int
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenBytes overrides the credential entropy size.
func WithTokenBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.tokenBytes = n
		}
	}
}

// NewService constructs a Service over the given stores.
func NewService(log *slog.Logger, store Store, identities identity.Store, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		log:        log,
		store:      store,
		identities: identities,
		ttl:        DefaultTTL,
		tokenBytes: defaultTokenBytes,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Issued is the result of issuing a session.
type Issued struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// Issue creates a new session for an identity and returns the plain cookie
// credential. The credential is never persisted; only its hash is.
func (s *Service) Issue(ctx context.Context, now time.Time, identityID string) (Issued, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, hash, err := newOpaqueToken(s.tokenBytes)
	if err != nil {
		return Issued{}, err
	}

	expiresAt := now.Add(s.ttl)
	sessionID, err := s.store.Create(ctx, now, identityID, hash, expiresAt)
	if err != nil {
		return Issued{}, err
	}

	s.log.Info("session.issued", "session_id", sessionID, "identity_id", identityID, "expires_at", expiresAt)

	return Issued{SessionID: sessionID, Token: plain, ExpiresAt: expiresAt}, nil
}

// Validate confirms an active session backs the credential and returns the
// identity bound to it. Every failure mode unwraps to ErrUnauthenticated;
// callers must refuse admission and must not create partial state.
func (s *Service) Validate(ctx context.Context, credential string) (identity.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(credential) > maxCredentialLen {
		return identity.Identity{}, ErrSessionNotFound
	}

	now := time.Now().UTC()

	row, err := s.store.GetByTokenHash(ctx, hashTokenHex(credential))
	if err != nil {
		return identity.Identity{}, err
	}
	if row.RevokedAt != nil {
		return identity.Identity{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return identity.Identity{}, ErrSessionExpired
	}

	ident, err := s.identities.GetByID(ctx, row.IdentityID)
	if err != nil {
		// Session rows must never outlive their identity; treat dangling
		// references as unauthenticated rather than surfacing store errors.
		return identity.Identity{}, ErrSessionNotFound
	}

	// Best-effort bookkeeping; a failed touch never fails validation.
	if err := s.store.Touch(ctx, now, row.ID); err != nil {
		s.log.Warn("session.touch.fail", "session_id", row.ID, "err", err)
	}

	return ident, nil
}

// Lookup resolves a credential to its session row without touching it.
// Used by logout to find the session to revoke.
func (s *Service) Lookup(ctx context.Context, credential string) (Row, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(credential) > maxCredentialLen {
		return Row{}, ErrSessionNotFound
	}
	return s.store.GetByTokenHash(ctx, hashTokenHex(credential))
}

// Revoke revokes a single session by id (logout).
func (s *Service) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.Revoke(ctx, now, sessionID)
}
