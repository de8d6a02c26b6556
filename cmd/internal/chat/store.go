package chat

import (
	"context"
	"time"
)

// AppendInput carries everything the store needs to accept one message.
type AppendInput struct {
	ConversationID string
	SenderID       string
	Body           string
	Now            time.Time
}

// Store is the persistence boundary of the engine.
//
// Implementations must honor two contracts:
//
//   - GetOrCreateConversation is idempotent for a given pair. Two concurrent
//     calls for the same two users must converge on the same conversation,
//     whichever order the participants were passed in.
//
//   - AppendMessage is atomic. The inserted message and the update of the
//     conversation's last_message_id / last_activity_at either both happen or
//     neither does, and the assigned timestamp never precedes the
//     conversation's previous activity.
type Store interface {
	GetOrCreateConversation(ctx context.Context, now time.Time, userA, userB string) (Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	AppendMessage(ctx context.Context, in AppendInput) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
}
