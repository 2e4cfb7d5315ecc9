package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is an embedded MessageStore backed by BadgerDB. It is the
// durable option for single-node deployments that do not run Postgres.
//
// Ownership model:
// - BadgerStore owns the badger.DB handle; Close releases it.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger-backed store at path.
// An empty path opens an in-memory database, which is useful for tests.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append persists a message.
//
// The key is formatted as "msg:{receiver}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message id as a collision disconnector
//     if two messages arrive at the same nanosecond.
func (s *BadgerStore) Append(ctx context.Context, msg StoredMessage) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil badger store")
	}
	if msg.ID == "" || msg.SenderID == "" || msg.Payload == "" {
		return errors.New("store: invalid input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	receiver := msg.Receiver
	if receiver == "" {
		receiver = "room"
	}

	key := fmt.Sprintf("msg:%s:%019d:%s", receiver, msg.CreatedAt.UnixNano(), msg.ID)

	val, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// count scans all message keys. Test hook only; the relay never reads back.
func (s *BadgerStore) count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
