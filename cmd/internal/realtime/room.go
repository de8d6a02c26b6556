package realtime

import (
	"log/slog"
	"sync"

	v1 "ripple/shared/contracts/realtime/v1"
)

// Room is an in-memory broadcast fanout primitive. A room is either a
// conversation room (keyed by conversation id) or a personal user room.
//
// Concurrency guarantees:
// - Join/Leave are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client

	onDrop func()
}

// NewRoom constructs a room. onDrop may be nil; it is invoked once per
// envelope dropped under backpressure.
func NewRoom(log *slog.Logger, id string, onDrop func()) *Room {
	return &Room{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
		onDrop:  onDrop,
	}
}

// Join adds a client to membership.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.SessionID] = client
	r.mu.Unlock()

	r.log.Debug("realtime.room.join", "room_id", r.ID, "session_id", client.SessionID)
}

// Leave removes a client from membership. It does not close the client;
// a session leaving one room stays live in its others.
func (r *Room) Leave(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}

	r.mu.Lock()
	delete(r.members, sessionID)
	r.mu.Unlock()

	r.log.Debug("realtime.room.leave", "room_id", r.ID, "session_id", sessionID)
}

// Empty reports whether the room has no members.
func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

// Snapshot copies the current membership keyed by session id.
func (r *Room) Snapshot(into map[string]*Client) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, m := range r.members {
		into[id] = m
	}
}

// Broadcast fanouts an envelope to all members. Non-blocking: if a member
// queue is full or the client is shutting down, the envelope is dropped for
// that member.
func (r *Room) Broadcast(env v1.Envelope) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members {
		deliver(m, env, r.onDrop)
	}
}

func deliver(c *Client, env v1.Envelope, onDrop func()) {
	if c == nil {
		return
	}

	select {
	case <-c.Done():
		return
	default:
	}

	select {
	case c.Send <- env:
	default:
		// Drop rather than block the whole room.
		if onDrop != nil {
			onDrop()
		}
	}
}
