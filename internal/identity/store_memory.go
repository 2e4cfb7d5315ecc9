package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is the identity store used when no database is configured
// (dev mode) and by tests.
type InMemoryStore struct {
	mu         sync.Mutex
	byID       map[string]Identity
	byProvider map[string]string // provider id -> internal id
}

// NewInMemoryStore constructs an empty in-memory identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:       make(map[string]Identity),
		byProvider: make(map[string]string),
	}
}

// UpsertByProvider creates or refreshes the identity bound to a provider subject.
func (s *InMemoryStore) UpsertByProvider(ctx context.Context, now time.Time, p Profile) (Identity, error) {
	if strings.TrimSpace(p.ProviderID) == "" {
		return Identity{}, errors.New("identity: missing provider id")
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byProvider[p.ProviderID]; ok {
		cur := s.byID[id]
		cur.DisplayName = p.DisplayName
		cur.Email = p.Email
		cur.AvatarURL = p.AvatarURL
		s.byID[id] = cur
		return cur, nil
	}

	id, err := NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	created := Identity{
		ID:          id,
		ProviderID:  p.ProviderID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		AvatarURL:   p.AvatarURL,
		CreatedAt:   now,
	}
	s.byID[id] = created
	s.byProvider[p.ProviderID] = id
	return created, nil
}

// GetByID loads an identity by internal id.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}
