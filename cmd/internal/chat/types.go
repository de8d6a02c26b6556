package chat

import "time"

// Conversation is a direct conversation between exactly two users.
//
// The pair is stored normalized: ParticipantLo sorts strictly before
// ParticipantHi. Every lookup and insert uses the normalized pair, which is
// what makes "the conversation between A and B" a single row no matter which
// side asked for it first.
type Conversation struct {
	ID             string
	ParticipantLo  string
	ParticipantHi  string
	LastMessageID  string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// HasParticipant reports whether userID is one of the two members.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.ParticipantLo || userID == c.ParticipantHi)
}

// Participants returns the normalized pair.
func (c Conversation) Participants() [2]string {
	return [2]string{c.ParticipantLo, c.ParticipantHi}
}

// Peer returns the other member of the conversation, or "" if userID is not
// a participant.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.ParticipantLo:
		return c.ParticipantHi
	case c.ParticipantHi:
		return c.ParticipantLo
	}
	return ""
}

// NormalizePair orders two user ids into the canonical (lo, hi) form.
func NormalizePair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message is a single message inside a conversation.
//
// CreatedAt is assigned by the store, never by the caller, and is clamped so
// it never moves backwards relative to the conversation's previous activity.
// Together with the ULID id this gives messages a total order within their
// conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	ReadBy         []string
	CreatedAt      time.Time
}

// ReadByUser reports whether userID already appears in the read set.
func (m Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
