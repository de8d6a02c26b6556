package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func validEnvelope(t *testing.T) Envelope {
	t.Helper()
	payload, err := json.Marshal(MessageSendPayload{ConversationID: "c1", Text: "hi"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{
		V:       Version,
		Type:    TypeMessageSend,
		ID:      "evt-1",
		TS:      time.Now(),
		Payload: payload,
	}
}

func TestEnvelopeValidate(t *testing.T) {
	if err := validEnvelope(t).Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"wrong version", func(e *Envelope) { e.V = 99 }},
		{"empty type", func(e *Envelope) { e.Type = "" }},
		{"unknown type", func(e *Envelope) { e.Type = "message:edit" }},
		{"missing id", func(e *Envelope) { e.ID = "" }},
		{"zero ts", func(e *Envelope) { e.TS = time.Time{} }},
		{"nil payload", func(e *Envelope) { e.Payload = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEnvelope(t)
			tc.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := validEnvelope(t)
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != TypeMessageSend {
		t.Fatalf("type = %q", back.Type)
	}
	var payload MessageSendPayload
	if err := json.Unmarshal(back.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ConversationID != "c1" || payload.Text != "hi" {
		t.Fatalf("payload = %+v", payload)
	}
}
