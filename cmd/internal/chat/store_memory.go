package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"ripple/cmd/identity/ids"
)

// MemoryStore is an in-process Store for tests and for running the server
// without a database. It honors the same contracts as the Postgres store:
// idempotent pair creation and clamped, atomic appends.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]*Conversation
	byPair   map[[2]string]string
	messages map[string][]Message
}

// NewMemoryStore creates an empty in-memory chat store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Conversation),
		byPair:   make(map[[2]string]string),
		messages: make(map[string][]Message),
	}
}

func (s *MemoryStore) GetOrCreateConversation(ctx context.Context, now time.Time, userA, userB string) (Conversation, bool, error) {
	lo, hi := NormalizePair(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPair[[2]string{lo, hi}]; ok {
		return *s.byID[id], false, nil
	}
	c := Conversation{
		ID:             ids.MustNewULID(now),
		ParticipantLo:  lo,
		ParticipantHi:  hi,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	s.byID[c.ID] = &c
	s.byPair[[2]string{lo, hi}] = c.ID
	return c, true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Conversation
	for _, c := range s.byID {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, in AppendInput) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[in.ConversationID]
	if !ok {
		return Message{}, ErrNotFound
	}

	// Strictly after the previous activity: equal timestamps would leave the
	// listing order to the id tie-break, which is random across appends.
	createdAt := in.Now
	if !createdAt.After(c.LastActivityAt) {
		createdAt = c.LastActivityAt.Add(time.Microsecond)
	}
	msg := Message{
		ID:             ids.MustNewULID(createdAt),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		ReadBy:         []string{in.SenderID},
		CreatedAt:      createdAt,
	}
	s.messages[in.ConversationID] = append(s.messages[in.ConversationID], msg)
	c.LastMessageID = msg.ID
	c.LastActivityAt = createdAt
	return msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].ReadBy = append([]string(nil), m.ReadBy...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i := range msgs {
		if !msgs[i].ReadByUser(userID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
		}
	}
	return nil
}
