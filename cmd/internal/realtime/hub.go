package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ripple/cmd/internal/chat"
	v1 "ripple/shared/contracts/realtime/v1"
)

// UserRoomID is the id of a user's personal room. Every connection joins its
// own user room at accept time; direct notifications land there even when
// the session has not joined the conversation room yet.
func UserRoomID(userID string) string {
	return "user:" + userID
}

// Hub owns the in-memory rooms and fans accepted messages out to them.
// It implements chat.Broadcaster, which is how the engine reaches connected
// peers without knowing anything about websockets.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room

	dropped prometheus.Counter
}

// NewHub constructs a Hub. reg may be nil, in which case the drop counter
// stays unregistered.
func NewHub(log *slog.Logger, reg prometheus.Registerer) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]*Room),
		dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ripple_realtime_broadcast_dropped_total",
			Help: "Envelopes dropped under per-client backpressure.",
		}),
	}
}

// GetOrCreateRoom returns a stable room handle.
func (h *Hub) GetOrCreateRoom(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok {
		return r
	}
	r := NewRoom(h.log, roomID, h.dropped.Inc)
	h.rooms[roomID] = r
	return r
}

// AddClient registers a freshly accepted connection and joins it to its
// personal user room.
func (h *Hub) AddClient(client *Client) {
	h.GetOrCreateRoom(UserRoomID(client.UserID)).Join(client)
}

// RemoveClient removes the session from every room and signals its
// goroutines to stop. Empty rooms are pruned.
func (h *Hub) RemoveClient(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	for id, r := range h.rooms {
		r.Leave(client.SessionID)
		if r.Empty() {
			delete(h.rooms, id)
		}
	}
	h.mu.Unlock()

	client.Close()
}

// MessageCreated implements chat.Broadcaster. The accepted message goes to
// the conversation room and to both participants' personal rooms; a session
// present in more than one of those receives it once.
func (h *Hub) MessageCreated(conv chat.Conversation, msg chat.Message) {
	payload, err := json.Marshal(v1.MessageNewPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.SenderID,
		Text:           msg.Body,
		ReadBy:         msg.ReadBy,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		h.log.Error("realtime.broadcast.marshal_fail", "error", err)
		return
	}
	env := newEnvelope(v1.TypeMessageNew, payload, msg.CreatedAt)

	recipients := make(map[string]*Client)
	h.mu.RLock()
	h.rooms[msg.ConversationID].Snapshot(recipients)
	h.rooms[UserRoomID(conv.ParticipantLo)].Snapshot(recipients)
	h.rooms[UserRoomID(conv.ParticipantHi)].Snapshot(recipients)
	h.mu.RUnlock()

	for _, c := range recipients {
		deliver(c, env, h.dropped.Inc)
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}
