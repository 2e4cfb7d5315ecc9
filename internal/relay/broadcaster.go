package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Kabilan-0809/chat-application/internal/codec"
	"github.com/Kabilan-0809/chat-application/internal/store"
	v1 "github.com/Kabilan-0809/chat-application/shared/contracts/chat/v1"
)

// Broadcaster turns a validated inbound send event into a room-wide fanout:
// resolve sender, encode, persist, decode, broadcast.
//
// Persistence is best-effort: a failed store write is logged and counted but
// never blocks delivery. This relay favors live delivery over durability;
// it is a chat room, not a log.
type Broadcaster struct {
	log     *slog.Logger
	room    *Room
	store   store.MessageStore
	metrics *Metrics
}

// NewBroadcaster wires a Broadcaster over the room and message store.
func NewBroadcaster(log *slog.Logger, room *Room, st store.MessageStore, metrics *Metrics) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if st == nil {
		st = store.NewInMemoryStore()
	}
	return &Broadcaster{log: log, room: room, store: st, metrics: metrics}
}

// HandleSend processes one send event from connID. Senders that were never
// admitted (or already removed) are rejected silently: no store write, no
// broadcast. Send is fire-and-forget; the caller gets no acknowledgement.
func (b *Broadcaster) HandleSend(ctx context.Context, connID, receiver, text string) {
	ident, ok := b.room.Resolve(connID)
	if !ok {
		b.log.Info("relay.send.unadmitted", "conn_id", connID)
		return
	}

	payload := codec.Encode(text)
	b.relay(ctx, ident.ID, ident.DisplayName, receiver, payload)
}

// relay persists and fans out an already-encoded payload. Malformed payloads
// are dropped here without aborting anything else.
func (b *Broadcaster) relay(ctx context.Context, senderID, senderName, receiver, payload string) {
	now := time.Now().UTC()

	msgID, err := NewMessageID(now)
	if err != nil {
		b.log.Error("relay.msgid.fail", "err", err)
		return
	}

	// Delivery-first, best-effort persistence. Only the encoded payload is
	// stored; raw text never reaches the store.
	if err := b.store.Append(ctx, store.StoredMessage{
		ID:        msgID,
		SenderID:  senderID,
		Sender:    senderName,
		Receiver:  receiver,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		if b.metrics != nil {
			b.metrics.PersistFailures.Inc()
		}
		b.log.Warn("relay.persist.fail", "msg_id", msgID, "err", err)
	}

	decoded, err := codec.Decode(payload)
	if err != nil {
		if b.metrics != nil {
			b.metrics.PayloadsDropped.Inc()
		}
		b.log.Info("relay.payload.drop", "msg_id", msgID, "err", err)
		return
	}

	body, _ := json.Marshal(v1.MessageNewPayload{
		Sender:   senderName,
		SenderID: senderID,
		Text:     decoded,
		ServerTS: now,
	})
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMessageNew,
		ID:      NewEnvelopeID(),
		TS:      now,
		Payload: body,
	}

	b.room.Broadcast(env)
	if b.metrics != nil {
		b.metrics.Broadcasts.Inc()
	}
}
