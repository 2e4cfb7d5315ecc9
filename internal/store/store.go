// Package store provides append-only message persistence for the relay.
//
// The relay persists only the encoded payload form of a message; raw text
// never reaches a Store. Persistence is deliberately best-effort from the
// broadcaster's point of view: a failed Append is logged by the caller and
// delivery proceeds. This system favors live delivery over durability.
package store

import (
	"context"
	"time"
)

// StoredMessage is the canonical persisted message representation.
//
// Payload is the codec-encoded form; Receiver is the room-or-recipient
// identifier carried on the wire (currently informational, broadcast is
// room-wide).
type StoredMessage struct {
	ID        string
	SenderID  string
	Sender    string
	Receiver  string
	Payload   string
	CreatedAt time.Time
}

// MessageStore persists relayed messages.
type MessageStore interface {
	// Append records a message. Implementations must not retain the input
	// after returning.
	Append(ctx context.Context, msg StoredMessage) error

	Close() error
}
