package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kabilan-0809/chat-application/internal/identity"
	v1 "github.com/Kabilan-0809/chat-application/shared/contracts/chat/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func testIdentity(name string) identity.Identity {
	return identity.Identity{
		ID:          "id-" + name,
		ProviderID:  "google-" + name,
		DisplayName: name,
		CreatedAt:   time.Now().UTC(),
	}
}

func testEnvelope(t *testing.T, text string) v1.Envelope {
	t.Helper()

	body, err := json.Marshal(v1.MessageNewPayload{Sender: "x", Text: text, ServerTS: time.Now().UTC()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return v1.Envelope{V: v1.Version, Type: v1.TypeMessageNew, ID: "e1", TS: time.Now().UTC(), Payload: body}
}

func TestRoom_AdmitResolveRemove(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())

	cl := NewClient("c1", testIdentity("alice"), 8)
	room.Admit(cl)

	if got := room.Len(); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}
	ident, ok := room.Resolve("c1")
	if !ok || ident.DisplayName != "alice" {
		t.Fatalf("resolve: ok=%v ident=%+v", ok, ident)
	}

	room.Remove("c1")
	if got := room.Len(); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}
	if _, ok := room.Resolve("c1"); ok {
		t.Fatalf("removed connection must not resolve")
	}

	select {
	case <-cl.Done():
	default:
		t.Fatalf("removed client must be signalled to close")
	}
}

func TestRoom_AdmitIsIdempotentPerConnID(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())

	old := NewClient("c1", testIdentity("alice"), 8)
	room.Admit(old)

	replacement := NewClient("c1", testIdentity("alice"), 8)
	room.Admit(replacement)

	if got := room.Len(); got != 1 {
		t.Fatalf("re-admit must replace, not add: got %d members", got)
	}

	select {
	case <-old.Done():
	default:
		t.Fatalf("replaced client must be shut down")
	}

	// Re-admitting the exact same client is a no-op.
	room.Admit(replacement)
	select {
	case <-replacement.Done():
		t.Fatalf("self re-admit must not shut the client down")
	default:
	}
}

func TestRoom_RemoveUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())
	room.Remove("never-admitted")
	room.Remove("")

	if got := room.Len(); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}
}

func TestRoom_BroadcastReachesAllMembers(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())

	const n = 5
	clients := make([]*Client, 0, n)
	for i := 0; i < n; i++ {
		cl := NewClient(fmt.Sprintf("c%d", i), testIdentity(fmt.Sprintf("u%d", i)), 8)
		room.Admit(cl)
		clients = append(clients, cl)
	}

	env := testEnvelope(t, "hello")
	room.Broadcast(env)

	for i, cl := range clients {
		select {
		case got := <-cl.Send:
			if got.Type != v1.TypeMessageNew {
				t.Fatalf("client %d: wrong type %q", i, got.Type)
			}
		default:
			t.Fatalf("client %d: no delivery", i)
		}
	}
}

func TestRoom_BroadcastSkipsClosingClients(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())

	alive := NewClient("alive", testIdentity("a"), 8)
	closing := NewClient("closing", testIdentity("b"), 8)
	room.Admit(alive)
	room.Admit(closing)
	closing.Close()

	room.Broadcast(testEnvelope(t, "hi"))

	select {
	case <-alive.Send:
	default:
		t.Fatalf("alive client must receive")
	}
	select {
	case <-closing.Send:
		t.Fatalf("closing client must be skipped")
	default:
	}
}

func TestRoom_BroadcastDropsOnFullQueue(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())

	slow := NewClient("slow", testIdentity("s"), 1)
	room.Admit(slow)

	env := testEnvelope(t, "x")
	for i := 0; i < cap(slow.Send)+10; i++ {
		room.Broadcast(env) // must never block
	}

	if got := len(slow.Send); got != cap(slow.Send) {
		t.Fatalf("expected full queue (%d), got %d", cap(slow.Send), got)
	}
}

func TestRoom_ConcurrentMutationAndBroadcast(t *testing.T) {
	t.Parallel()

	room := NewRoom(testLogger(), testMetrics())
	env := testEnvelope(t, "race")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := fmt.Sprintf("c%d-%d", i, j)
				cl := NewClient(id, testIdentity("u"), 4)
				room.Admit(cl)
				room.Broadcast(env)
				room.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	if got := room.Len(); got != 0 {
		t.Fatalf("expected empty room after churn, got %d", got)
	}
}
