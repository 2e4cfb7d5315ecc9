// Package v1 defines the chat relay wire protocol v1.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a connection handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake and echoes the admitted identity (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeMessageSend submits a raw-text message for relay (client -> server).
	// The client always sends plain text; encoding for storage happens server-side.
	TypeMessageSend = "message_send"
	// TypeMessageNew delivers a relayed message to every connected client (server -> clients).
	TypeMessageNew = "message_new"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeMessageSend,
		TypeMessageNew,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate the handshake.
// The session credential travels in the cookie, not in the payload.
type HelloPayload struct{}

// HelloAckPayload confirms admission and echoes the authenticated identity.
type HelloAckPayload struct {
	ConnectionID string    `json:"connection_id"`
	User         UserBrief `json:"user"`
}

// UserBrief is the public slice of an identity carried on the wire.
type UserBrief struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// MessageSendPayload submits a message. Text is always raw UTF-8;
// clients must not pre-encode it.
type MessageSendPayload struct {
	Receiver string `json:"receiver,omitempty"`
	Text     string `json:"text"`
}

// MessageNewPayload is broadcast to all connected clients when a message is relayed.
type MessageNewPayload struct {
	Sender   string    `json:"sender"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	ServerTS time.Time `json:"server_ts"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
