package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"ripple/cmd/internal/chat"
	v1 "ripple/shared/contracts/realtime/v1"
)

const (
	wsSubprotocolV1 = "ripple.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Origin checks default to required with only localhost allowed.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// AccessVerifier checks an access token statelessly (signature and expiry).
// At connect time the stored pair is deliberately not consulted; a reissued
// pair cuts off the REST surface immediately and live sockets at their next
// reconnect.
type AccessVerifier interface {
	VerifyAccessToken(tokenPlain string, now time.Time) (userID string, err error)
}

// Engine is the slice of the chat engine the gateway needs. *chat.Service
// satisfies it.
type Engine interface {
	SendMessage(ctx context.Context, now time.Time, conversationID, senderID, body string) (chat.Message, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// WSGateway is the websocket entrypoint for Ripple realtime.
//
// It enforces origin policy, access-token auth, rate limits and heartbeats,
// and routes validated envelopes to the Hub and the chat engine.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	engine   Engine
	verifier AccessVerifier

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks: Accept authorizes
	// same-host origins by default but cross-origin needs OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	ratePerSecond int
	rateBurst     int

	connections prometheus.Gauge
}

// NewWSGateway constructs a gateway with secure defaults. reg may be nil.
func NewWSGateway(log *slog.Logger, hub *Hub, engine Engine, verifier AccessVerifier, reg prometheus.Registerer) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log, reg)
	}

	g := &WSGateway{log: log, hub: hub, engine: engine, verifier: verifier}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is
	// not an origin policy.
	g.devInsecure = envBoolWS("RIPPLE_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("RIPPLE_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("RIPPLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("RIPPLE_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("RIPPLE_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("RIPPLE_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("RIPPLE_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("RIPPLE_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.ratePerSecond = envIntWS("RIPPLE_WS_RATE_PER_SECOND", rateLimitPerSecond)
	g.rateBurst = envIntWS("RIPPLE_WS_RATE_BURST", rateLimitBurst)

	g.connections = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "ripple_realtime_connections",
		Help: "Currently open websocket connections.",
	})

	return g
}

// ServeHTTP adapter so the gateway mounts as an http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// realtime loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if g.engine == nil || g.verifier == nil {
		http.Error(w, "realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "error", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Auth happens before the upgrade: a connection without a live access
	// token never becomes a websocket.
	userID, err := g.verifier.VerifyAccessToken(accessTokenFromRequest(r), time.Now().UTC())
	if err != nil {
		g.log.Info("ws.reject.auth", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID := NewRandomHex(10)
	client := NewClient(userID, sessionID, g.sendQueueSize)
	g.hub.AddClient(client)
	g.connections.Inc()
	defer g.connections.Dec()

	g.log.Info("ws.session.open", "session_id", sessionID, "user_id", userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	joined := make(map[string]*Room)

	// shutdown is idempotent. Membership removal happens before
	// client.Close so a broadcaster never races teardown.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.RemoveClient(client)
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.session.close", "session_id", sessionID, "reason", reason)
		})
	}

	limiter := rate.NewLimiter(rate.Limit(g.ratePerSecond), g.rateBurst)

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
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "error", err)
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
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "error", err)
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
				// Malformed frames are dropped without a reply.
				g.log.Info("ws.frame.malformed", "session_id", sessionID, "error", err)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "error", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !limiter.Allow() {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			// Same policy as bad JSON: log and drop, no error envelope.
			g.log.Info("ws.envelope.invalid", "session_id", sessionID, "error", err)
			continue readLoop
		}

		switch env.Type {
		case v1.TypeConversationJoin:
			room, err := g.onJoin(ctx, client, env)
			if err != nil {
				g.trySendError(ctx, client, joinErrCode(err), err.Error())
				continue readLoop
			}
			joined[room.ID] = room

		case v1.TypeConversationLeave:
			roomID := g.onLeave(client, env, joined)
			delete(joined, roomID)

		case v1.TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env, now); err != nil {
				g.trySendError(ctx, client, sendErrCode(err), err.Error())
				continue readLoop
			}

		default:
			g.log.Info("ws.envelope.unroutable", "session_id", sessionID, "type", env.Type)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *WSGateway) onJoin(ctx context.Context, client *Client, env v1.Envelope) (*Room, error) {
	var p v1.ConversationRefPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, errors.New("invalid payload")
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return nil, errors.New("missing conversation_id")
	}

	// Authorization is re-checked per join, not assumed from connect time.
	member, err := g.engine.IsParticipant(ctx, convID, client.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, chat.ErrNotFound
		}
		g.log.Error("ws.join.membership_check_fail", "session_id", client.SessionID, "error", err)
		return nil, errors.New("join failed")
	}
	if !member {
		return nil, chat.ErrForbidden
	}

	room := g.hub.GetOrCreateRoom(convID)
	room.Join(client)
	return room, nil
}

func (g *WSGateway) onLeave(client *Client, env v1.Envelope, joined map[string]*Room) string {
	var p v1.ConversationRefPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return ""
	}

	convID := strings.TrimSpace(p.ConversationID)
	if room, ok := joined[convID]; ok {
		room.Leave(client.SessionID)
	}
	return convID
}

func (g *WSGateway) onMessageSend(ctx context.Context, client *Client, env v1.Envelope, now time.Time) error {
	var p v1.MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return errors.New("invalid payload")
	}

	// The engine owns validation, membership and atomic persistence; the
	// broadcast back to this room happens through the hub once the message
	// is durable.
	_, err := g.engine.SendMessage(ctx, now, strings.TrimSpace(p.ConversationID), client.UserID, p.Text)
	return err
}

// ---- error codes ----

func joinErrCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden"
	default:
		return "join_failed"
	}
}

func sendErrCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return "invalid"
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden"
	default:
		return "send_failed"
	}
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

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, errors.New("unsupported message type")
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
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}

	// Fallback for unmarshal errors propagated as strings.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- auth ----

func accessTokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
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

	return errors.New("origin not allowed: " + origin)
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

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Keep this strict: only hosts extracted from the allowlist.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
