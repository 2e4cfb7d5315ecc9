package relay

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewConnectionID returns the opaque id assigned to a transport connection.
// It is never persisted, so an unordered UUID is fine here.
func NewConnectionID() string {
	return uuid.NewString()
}

// NewMessageID returns a ULID used as persisted message id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewMessageID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewEnvelopeID returns a short random id attached to outbound envelopes.
func NewEnvelopeID() string {
	return uuid.NewString()
}
