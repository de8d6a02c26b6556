package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxMessageChars bounds a message body, counted in runes.
const MaxMessageChars = 4000

// Broadcaster receives messages after they have been durably accepted.
// Implementations must not block; delivery is best effort and a slow or
// absent listener never affects the sender's result.
type Broadcaster interface {
	MessageCreated(conv Conversation, msg Message)
}

// NopBroadcaster drops every event. Used when no realtime layer is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) MessageCreated(Conversation, Message) {}

// Service is the message ordering and delivery engine. REST handlers and the
// websocket gateway both call into it; there is no second write path.
type Service struct {
	log         *slog.Logger
	store       Store
	broadcaster Broadcaster

	messagesAccepted prometheus.Counter
}

// NewService wires the engine. broadcaster may be nil. reg may be nil, in
// which case the counters stay unregistered.
func NewService(log *slog.Logger, store Store, broadcaster Broadcaster, reg prometheus.Registerer) *Service {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &Service{
		log:         log,
		store:       store,
		broadcaster: broadcaster,
		messagesAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ripple_chat_messages_accepted_total",
			Help: "Messages durably accepted into conversations.",
		}),
	}
}

// GetOrCreateConversation returns the direct conversation between the
// requester and otherID, creating it on first contact.
func (s *Service) GetOrCreateConversation(ctx context.Context, now time.Time, requesterID, otherID string) (Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return Conversation{}, fmt.Errorf("%w: missing participant", ErrValidation)
	}
	if otherID == requesterID {
		return Conversation{}, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	conv, created, err := s.store.GetOrCreateConversation(ctx, now, requesterID, otherID)
	if err != nil {
		return Conversation{}, fmt.Errorf("get or create conversation: %w", err)
	}
	if created {
		s.log.InfoContext(ctx, "chat.conversation.created",
			slog.String("conversation_id", conv.ID))
	}
	return conv, nil
}

// ListConversations returns the requester's conversations, newest activity
// first.
func (s *Service) ListConversations(ctx context.Context, requesterID string) ([]Conversation, error) {
	return s.store.ListConversations(ctx, requesterID)
}

// IsParticipant reports whether userID belongs to the conversation.
// Returns ErrNotFound if the conversation does not exist.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

// SendMessage validates, persists, and fans out one message. Persistence and
// the conversation pointer update are atomic in the store; the broadcast
// happens only after that unit succeeds.
func (s *Service) SendMessage(ctx context.Context, now time.Time, conversationID, senderID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, fmt.Errorf("%w: empty message", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxMessageChars {
		return Message{}, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxMessageChars)
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	if !conv.HasParticipant(senderID) {
		return Message{}, ErrForbidden
	}

	msg, err := s.store.AppendMessage(ctx, AppendInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		Now:            now,
	})
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	s.messagesAccepted.Inc()

	s.broadcaster.MessageCreated(conv, msg)
	return msg, nil
}

// ListMessages returns the conversation's messages in order and marks them
// read by the requester. A mark-read failure is logged, not surfaced: the
// read set is advisory, the listing is not.
func (s *Service) ListMessages(ctx context.Context, conversationID, requesterID string) ([]Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, ErrForbidden
	}

	if err := s.store.MarkRead(ctx, conversationID, requesterID); err != nil {
		s.log.WarnContext(ctx, "chat.mark_read.failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
	return s.store.ListMessages(ctx, conversationID)
}
