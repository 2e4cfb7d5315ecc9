package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Kabilan-0809/chat-application/internal/auth/session"
	"github.com/Kabilan-0809/chat-application/internal/identity"
	"github.com/Kabilan-0809/chat-application/internal/store"
	v1 "github.com/Kabilan-0809/chat-application/shared/contracts/chat/v1"
)

type gatewayFixture struct {
	srv      *httptest.Server
	room     *Room
	store    *store.InMemoryStore
	sessions *session.Service
	idStore  *identity.InMemoryStore
}

func newGatewayFixture(t *testing.T, opts ...GatewayOption) *gatewayFixture {
	t.Helper()

	log := testLogger()
	metrics := testMetrics()
	idStore := identity.NewInMemoryStore()
	sessions := session.NewService(log, session.NewInMemoryStore(), idStore)

	room := NewRoom(log, metrics)
	st := store.NewInMemoryStore()
	b := NewBroadcaster(log, room, st, metrics)
	gw := NewWSGateway(log, room, b, sessions, metrics, opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayFixture{srv: srv, room: room, store: st, sessions: sessions, idStore: idStore}
}

func (f *gatewayFixture) issueSession(t *testing.T, name string) string {
	t.Helper()

	ctx := context.Background()
	ident, err := f.idStore.UpsertByProvider(ctx, time.Now().UTC(), identity.Profile{
		ProviderID:  "google-" + name,
		DisplayName: name,
		Email:       strings.ToLower(name) + "@example.com",
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	issued, err := f.sessions.Issue(ctx, time.Now().UTC(), ident.ID)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return issued.Token
}

func (f *gatewayFixture) dial(t *testing.T, ctx context.Context, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return f.dialFrom(t, ctx, token, "http://localhost")
}

func (f *gatewayFixture) dialFrom(t *testing.T, ctx context.Context, token, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	h := http.Header{}
	h.Set("Origin", origin)
	if token != "" {
		h.Set("Cookie", session.CookieName+"="+token)
	}

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	return websocket.Dial(ctx, wsURL+"/ws", &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func writeWire(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{V: v1.Version, Type: typ, ID: "t1", TS: time.Now().UTC(), Payload: body}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readWire(t *testing.T, ctx context.Context, conn *websocket.Conn) v1.Envelope {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func TestWSGateway_RejectsUnauthenticated(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// No session cookie at all.
	conn, resp, err := f.dial(t, ctx, "")
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("expected handshake failure without session cookie")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	// Bogus credential.
	conn, resp, err = f.dial(t, ctx, "not-a-session")
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("expected handshake failure for bogus credential")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	if got := f.room.Len(); got != 0 {
		t.Fatalf("refused attempts must leave no registry entry, got %d", got)
	}
}

func TestWSGateway_HelloAckCarriesIdentity(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := f.issueSession(t, "Alice")
	conn, _, err := f.dial(t, ctx, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	writeWire(t, ctx, conn, v1.TypeHello, v1.HelloPayload{})

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeHelloAck {
		t.Fatalf("expected %s, got %s", v1.TypeHelloAck, env.Type)
	}
	var ack v1.HelloAckPayload
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.ConnectionID == "" || ack.User.DisplayName != "Alice" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestWSGateway_AllowsPortedAllowlistedOrigin(t *testing.T) {
	t.Parallel()

	// Browser clients on a dev frontend send Origin with an explicit port.
	// Allowlisting that exact origin must admit them at both the allowlist
	// check and the websocket accept layer.
	f := newGatewayFixture(t, WithAllowedOrigins([]string{"http://localhost:3000"}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := f.issueSession(t, "Alice")
	conn, resp, err := f.dialFrom(t, ctx, token, "http://localhost:3000")
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("allowlisted ported origin must be admitted: status=%d err=%v", status, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	writeWire(t, ctx, conn, v1.TypeHello, v1.HelloPayload{})
	if env := readWire(t, ctx, conn); env.Type != v1.TypeHelloAck {
		t.Fatalf("expected hello_ack, got %s", env.Type)
	}

	// The bare-host origin stays admitted alongside the ported one.
	conn2, _, err := f.dialFrom(t, ctx, f.issueSession(t, "Bob"), "http://localhost")
	if err != nil {
		t.Fatalf("bare-host origin must stay admitted: %v", err)
	}
	_ = conn2.Close(websocket.StatusNormalClosure, "")
}

func TestDeriveOriginPatterns_KeepsExplicitPort(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://chat.example.com"})

	want := map[string]bool{
		"localhost:3000":   false,
		"localhost":        false,
		"chat.example.com": false,
	}
	for _, p := range got {
		if _, ok := want[p]; !ok {
			t.Fatalf("unexpected pattern %q in %v", p, got)
		}
		want[p] = true
	}
	for p, seen := range want {
		if !seen {
			t.Fatalf("missing pattern %q in %v", p, got)
		}
	}
}

func TestWSGateway_BroadcastReachesSenderAndPeer(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA, _, err := f.dial(t, ctx, f.issueSession(t, "Alice"))
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "") }()

	connB, _, err := f.dial(t, ctx, f.issueSession(t, "Bob"))
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer func() { _ = connB.Close(websocket.StatusNormalClosure, "") }()

	// Handshake both so admission is visible before the send.
	writeWire(t, ctx, connA, v1.TypeHello, v1.HelloPayload{})
	if env := readWire(t, ctx, connA); env.Type != v1.TypeHelloAck {
		t.Fatalf("A: expected hello_ack, got %s", env.Type)
	}
	writeWire(t, ctx, connB, v1.TypeHello, v1.HelloPayload{})
	if env := readWire(t, ctx, connB); env.Type != v1.TypeHelloAck {
		t.Fatalf("B: expected hello_ack, got %s", env.Type)
	}

	writeWire(t, ctx, connA, v1.TypeMessageSend, v1.MessageSendPayload{Text: "hello"})

	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		env := readWire(t, ctx, conn)
		if env.Type != v1.TypeMessageNew {
			t.Fatalf("%s: expected message_new, got %s", name, env.Type)
		}
		var p v1.MessageNewPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if p.Sender != "Alice" || p.Text != "hello" {
			t.Fatalf("%s: unexpected delivery: %+v", name, p)
		}
	}

	if got := f.store.Len(); got != 1 {
		t.Fatalf("expected 1 persisted message, got %d", got)
	}
}

func TestWSGateway_DisconnectDeregisters(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := f.dial(t, ctx, f.issueSession(t, "Alice"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	writeWire(t, ctx, conn, v1.TypeHello, v1.HelloPayload{})
	if env := readWire(t, ctx, conn); env.Type != v1.TypeHelloAck {
		t.Fatalf("expected hello_ack, got %s", env.Type)
	}
	if got := f.room.Len(); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(3 * time.Second)
	for f.room.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("disconnect did not deregister, members=%d", f.room.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSGateway_EmptyTextYieldsErrorEnvelope(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := f.dial(t, ctx, f.issueSession(t, "Alice"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	writeWire(t, ctx, conn, v1.TypeMessageSend, v1.MessageSendPayload{Text: "   "})

	env := readWire(t, ctx, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
	if got := f.store.Len(); got != 0 {
		t.Fatalf("empty text must not be persisted, got %d writes", got)
	}
}
