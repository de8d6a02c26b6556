package chatapi

import (
	"time"

	"ripple/cmd/internal/chat"
)

type createConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type conversationResponse struct {
	ID             string    `json:"id"`
	Participants   [2]string `json:"participants"`
	LastMessageID  string    `json:"last_message_id,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationListResponse struct {
	Conversations []conversationResponse `json:"conversations"`
}

type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

func toConversationResponse(c chat.Conversation) conversationResponse {
	return conversationResponse{
		ID:             c.ID,
		Participants:   c.Participants(),
		LastMessageID:  c.LastMessageID,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.SenderID,
		Text:           m.Body,
		ReadBy:         m.ReadBy,
		CreatedAt:      m.CreatedAt,
	}
}
