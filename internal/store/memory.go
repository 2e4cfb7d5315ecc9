package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

const memMaxMessages = 10_000

// InMemoryStore is a dev-only fallback when neither Postgres nor Badger is
// configured. It keeps a bounded ring of recent messages.
type InMemoryStore struct {
	mu   sync.Mutex
	msgs []StoredMessage
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{msgs: make([]StoredMessage, 0, 256)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append records a message.
func (s *InMemoryStore) Append(ctx context.Context, msg StoredMessage) error {
	if msg.ID == "" || msg.SenderID == "" || msg.Payload == "" {
		return errors.New("store: invalid input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs = append(s.msgs, msg)

	// Bound memory to avoid unbounded growth in dev.
	if len(s.msgs) > memMaxMessages {
		s.msgs = s.msgs[len(s.msgs)-memMaxMessages:]
	}
	return nil
}

// Len reports how many messages are currently retained. Test hook.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
