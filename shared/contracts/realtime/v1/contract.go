// Package v1 defines the Ripple realtime wire contract.
//
// It is shared between the server and clients and stays dependency-light on
// purpose: the envelope and payload shapes here are the protocol.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Version = 1

	TypeConversationJoin  = "conversation:join"
	TypeConversationLeave = "conversation:leave"
	TypeMessageSend       = "message:send"
	TypeMessageNew        = "message:new"
	TypeError             = "error"
)

var AllowedTypes = map[string]struct{}{
	TypeConversationJoin:  {},
	TypeConversationLeave: {},
	TypeMessageSend:       {},
	TypeMessageNew:        {},
	TypeError:             {},
}

// Envelope frames every event in both directions.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := AllowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}

// ConversationRefPayload is the payload of conversation:join and
// conversation:leave.
type ConversationRefPayload struct {
	ConversationID string `json:"conversation_id"`
}

// MessageSendPayload is the client-to-server payload of message:send.
type MessageSendPayload struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// MessageNewPayload is the server-to-client payload of message:new. It
// carries the accepted message exactly as the REST listing would return it.
type MessageNewPayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrorPayload is sent only for an operation that failed; a dropped or
// malformed frame produces no reply at all.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
