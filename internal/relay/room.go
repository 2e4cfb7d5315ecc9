package relay

import (
	"log/slog"
	"sync"

	"github.com/Kabilan-0809/chat-application/internal/identity"
	v1 "github.com/Kabilan-0809/chat-application/shared/contracts/chat/v1"
)

// Room is the connection registry: the set of currently admitted connections
// and the broadcast fanout primitive over them. This deployment runs a single
// room; every admitted connection receives every broadcast.
//
// Concurrency guarantees:
// - Admit/Remove are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log     *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs an empty Room.
func NewRoom(log *slog.Logger, metrics *Metrics) *Room {
	if log == nil {
		log = slog.Default()
	}
	return &Room{
		log:     log,
		metrics: metrics,
		members: make(map[string]*Client),
	}
}

// Admit registers a validated connection. It must only be called after
// session validation succeeded. Admitting the same connection id twice is
// idempotent: the prior entry is replaced and shut down.
func (r *Room) Admit(client *Client) {
	if r == nil || client == nil || client.ConnID == "" {
		return
	}

	var replaced *Client

	r.mu.Lock()
	if prev, ok := r.members[client.ConnID]; ok && prev != client {
		replaced = prev
	}
	r.members[client.ConnID] = client
	r.mu.Unlock()

	if replaced != nil {
		replaced.Close()
	} else if r.metrics != nil {
		r.metrics.ConnectionsActive.Inc()
	}

	r.log.Info("room.member.admit",
		"conn_id", client.ConnID,
		"identity_id", client.Identity.ID,
		"user", client.Identity.DisplayName,
	)
}

// Remove deregisters a connection and signals shutdown for its client.
// Removing an unknown id is a no-op; disconnect races must not crash the relay.
func (r *Room) Remove(connID string) {
	if r == nil || connID == "" {
		return
	}

	var cl *Client

	r.mu.Lock()
	cl = r.members[connID]
	delete(r.members, connID)
	r.mu.Unlock()

	// Signal client shutdown after removing from membership.
	// This ordering avoids race windows where a broadcaster still holds a
	// pointer while the client goroutines are being torn down.
	if cl == nil {
		return
	}
	cl.Close()

	if r.metrics != nil {
		r.metrics.ConnectionsActive.Dec()
	}
	r.log.Info("room.member.remove", "conn_id", connID)
}

// Resolve maps a connection id to its admitted identity.
// The second return is false when the connection was never admitted or has
// since been removed.
func (r *Room) Resolve(connID string) (identity.Identity, bool) {
	if r == nil || connID == "" {
		return identity.Identity{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cl, ok := r.members[connID]
	if !ok {
		return identity.Identity{}, false
	}
	return cl.Identity, true
}

// Len reports the current membership size.
func (r *Room) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fans an envelope out to every member, including the sender's own
// connections. Non-blocking: if a member queue is full or the client is
// shutting down, that delivery is dropped and the rest continue. Enumeration
// order is unspecified.
func (r *Room) Broadcast(env v1.Envelope) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			if r.metrics != nil {
				r.metrics.DeliveriesDropped.Inc()
			}
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole room.
			if r.metrics != nil {
				r.metrics.DeliveriesDropped.Inc()
			}
		}
	}
}
