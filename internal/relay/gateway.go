package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Kabilan-0809/chat-application/internal/auth/session"
	"github.com/Kabilan-0809/chat-application/internal/identity"
	v1 "github.com/Kabilan-0809/chat-application/shared/contracts/chat/v1"
)

const (
	wsSubprotocolV1 = "chat.relay.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
)

var wsDefaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}

// SessionValidator authorizes a connection credential before admission.
// session.Service is the concrete OAuth-backed implementation; the interface
// exists so alternate identity providers can be substituted without touching
// the relay.
type SessionValidator interface {
	Validate(ctx context.Context, credential string) (identity.Identity, error)
}

// WSGateway is the WebSocket entrypoint for the relay.
//
// It enforces origin policy, subprotocol selection, session-validated
// admission, rate limits, and heartbeats, and routes validated envelopes to
// the Broadcaster. No message traffic is accepted for a connection before its
// session credential has been validated and the connection admitted.
type WSGateway struct {
	log         *slog.Logger
	room        *Room
	broadcaster *Broadcaster
	validator   SessionValidator
	metrics     *Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// GatewayOption configures optional WSGateway behavior.
type GatewayOption func(*WSGateway)

// WithAllowedOrigins replaces the origin allowlist.
func WithAllowedOrigins(origins []string) GatewayOption {
	return func(g *WSGateway) {
		if len(origins) > 0 {
			g.allowedOrigins = origins
		}
	}
}

// WithOriginRequired toggles whether a missing Origin header is rejected.
func WithOriginRequired(required bool) GatewayOption {
	return func(g *WSGateway) { g.originRequired = required }
}

// WithDevInsecure enables the dev-only TLS verification escape hatch.
func WithDevInsecure(insecure bool) GatewayOption {
	return func(g *WSGateway) { g.devInsecure = insecure }
}

// WithSendQueueSize sets the per-connection send queue size.
func WithSendQueueSize(n int) GatewayOption {
	return func(g *WSGateway) {
		if n >= wsMinSendQueueSize {
			g.sendQueueSize = n
		}
	}
}

// WithTimeouts sets the write and read-idle timeouts.
func WithTimeouts(write, readIdle time.Duration) GatewayOption {
	return func(g *WSGateway) {
		if write > 0 {
			g.writeTimeout = write
		}
		if readIdle > 0 {
			g.readIdleTimeout = readIdle
		}
	}
}

// WithHeartbeat sets the heartbeat interval and per-ping timeout.
func WithHeartbeat(every, timeout time.Duration) GatewayOption {
	return func(g *WSGateway) {
		if every > 0 {
			g.heartbeatEvery = every
		}
		if timeout > 0 {
			g.heartbeatTimeout = timeout
		}
	}
}

// WithRateLimit sets the per-connection event budget.
func WithRateLimit(events int, window time.Duration) GatewayOption {
	return func(g *WSGateway) {
		if events > 0 {
			g.rateEvents = events
		}
		if window > 0 {
			g.rateWindow = window
		}
	}
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, room *Room, broadcaster *Broadcaster, validator SessionValidator, metrics *Metrics, opts ...GatewayOption) *WSGateway {
	if log == nil {
		log = slog.Default()
	}

	g := &WSGateway{
		log:         log,
		room:        room,
		broadcaster: broadcaster,
		validator:   validator,
		metrics:     metrics,

		originRequired: wsDefaultOriginRequired,
		allowedOrigins: wsDefaultAllowedOrigins,

		writeTimeout:    wsDefaultWriteTimeout,
		readIdleTimeout: wsDefaultReadIdle,
		sendQueueSize:   wsDefaultSendQueueSize,

		heartbeatEvery:   heartbeatInterval,
		heartbeatTimeout: heartbeatTimeout,

		rateEvents: rateLimitEvents,
		rateWindow: rateLimitWindow,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(g)
	}

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	return g
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS validates the session credential, upgrades the request to a
// WebSocket connection, admits it into the room, and runs the relay loop.
//
// Admission order matters: validation happens BEFORE the upgrade, so a
// rejected attempt never creates any connection state. There is no guest or
// partially-authenticated mode.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ident, err := g.authorize(r)
	if err != nil {
		if g.metrics != nil {
			g.metrics.AdmissionsRejected.Inc()
		}
		g.log.Info("ws.reject.unauthenticated", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID := NewConnectionID()
	client := NewClient(connID, ident, g.sendQueueSize)
	g.room.Admit(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent. It does NOT close client.Send.
	// Broadcast safety: client.Send remains open and room removal happens
	// before the transport close.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.room.Remove(connID)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			if err := g.onHello(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "send_failed", err.Error())
				continue readLoop
			}

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// authorize extracts the session cookie and validates it.
func (g *WSGateway) authorize(r *http.Request) (identity.Identity, error) {
	if g.validator == nil {
		return identity.Identity{}, errors.New("no session validator configured")
	}

	c, err := r.Cookie(session.CookieName)
	if err != nil || c.Value == "" {
		return identity.Identity{}, session.ErrSessionNotFound
	}
	return g.validator.Validate(r.Context(), c.Value)
}

// ---- handlers ----

func (g *WSGateway) onHello(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.HelloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	ackPayload, _ := json.Marshal(v1.HelloAckPayload{
		ConnectionID: client.ConnID,
		User: v1.UserBrief{
			ID:          client.Identity.ID,
			DisplayName: client.Identity.DisplayName,
			AvatarURL:   client.Identity.AvatarURL,
		},
	})
	ack := newEnvelope(v1.TypeHelloAck, ackPayload, time.Now().UTC())

	if !g.enqueue(ctx, client, ack) {
		return errors.New("backpressure: hello.ack")
	}
	return nil
}

func (g *WSGateway) onMessageSend(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		return errors.New("empty text")
	}
	if len([]rune(text)) > maxMessageChars {
		return fmt.Errorf("message too long: max=%d chars", maxMessageChars)
	}

	// Fire-and-forget: no ack envelope, no delivery confirmation.
	g.broadcaster.HandleSend(ctx, client.ConnID, strings.TrimSpace(p.Receiver), text)
	return nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if err == nil {
		return readErrUnknown
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHostPort returns the host[:port] part of an origin, lowercased,
// keeping an explicit port intact.
func originHostPort(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(u.Host))
	}
	return strings.ToLower(s)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the Origin header's
	// host INCLUDING its port. An allowlisted "http://localhost:3000" must
	// therefore yield the "localhost:3000" pattern, not just "localhost".
	// Emit both forms so ported and port-free origins are covered, and keep
	// this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, 2*len(allowed))

	for _, a := range allowed {
		if hp := originHostPort(a); hp != "" && hp != "*" {
			seen[hp] = struct{}{}
		}
		if h := originHostOnly(a); h != "" && h != "*" {
			seen[h] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	sort.Strings(out)
	return out
}
