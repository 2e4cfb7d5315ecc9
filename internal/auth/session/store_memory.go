package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Kabilan-0809/chat-application/internal/identity"
)

// InMemoryStore is the session store used when no database is configured
// (dev mode) and by tests.
type InMemoryStore struct {
	mu     sync.Mutex
	byID   map[string]Row
	byHash map[string]string // token hash -> session id
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]Row),
		byHash: make(map[string]string),
	}
}

// Create creates a session row.
func (s *InMemoryStore) Create(ctx context.Context, now time.Time, identityID, tokenHash string, expiresAt time.Time) (string, error) {
	if identityID == "" || tokenHash == "" {
		return "", errors.New("session: invalid input")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[id] = Row{
		ID:         id,
		IdentityID: identityID,
		TokenHash:  tokenHash,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	s.byHash[tokenHash] = id
	return id, nil
}

// GetByTokenHash loads a session row by credential hash.
func (s *InMemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return s.byID[id], nil
}

// Touch updates last_used_at.
func (s *InMemoryStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	row.LastUsedAt = &now
	s.byID[sessionID] = row
	return nil
}

// Revoke revokes a single session.
func (s *InMemoryStore) Revoke(ctx context.Context, now time.Time, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if row.RevokedAt == nil {
		row.RevokedAt = &now
		s.byID[sessionID] = row
	}
	return nil
}
