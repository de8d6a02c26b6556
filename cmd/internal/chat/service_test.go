package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestService(b Broadcaster) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(log, store, b, nil), store
}

type captureBroadcaster struct {
	events []Message
}

func (c *captureBroadcaster) MessageCreated(_ Conversation, msg Message) {
	c.events = append(c.events, msg)
}

func TestGetOrCreateConversation_IdempotentEitherOrder(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.GetOrCreateConversation(ctx, now.Add(time.Minute), "bob", "alice")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("pair resolved to two conversations: %q vs %q", first.ID, second.ID)
	}
	if first.ParticipantLo != "alice" || first.ParticipantHi != "bob" {
		t.Fatalf("pair not normalized: (%q, %q)", first.ParticipantLo, first.ParticipantHi)
	}
}

func TestGetOrCreateConversation_RejectsSelfAndEmpty(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Now()

	if _, err := svc.GetOrCreateConversation(ctx, now, "alice", "alice"); !errors.Is(err, ErrValidation) {
		t.Fatalf("self conversation: got %v, want ErrValidation", err)
	}
	if _, err := svc.GetOrCreateConversation(ctx, now, "alice", "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty participant: got %v, want ErrValidation", err)
	}
}

func TestSendMessage_OrderSurvivesClockStepback(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	conv, err := svc.GetOrCreateConversation(ctx, t0, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m1, err := svc.SendMessage(ctx, t0.Add(2*time.Second), conv.ID, "alice", "first")
	if err != nil {
		t.Fatalf("send m1: %v", err)
	}
	// The wall clock steps backwards between appends.
	m2, err := svc.SendMessage(ctx, t0.Add(time.Second), conv.ID, "bob", "second")
	if err != nil {
		t.Fatalf("send m2: %v", err)
	}
	// Strictly after: an equal timestamp would leave the order to the id
	// tie-break, which is not monotonic across appends.
	if !m2.CreatedAt.After(m1.CreatedAt) {
		t.Fatalf("m2 does not sort strictly after m1: %v <= %v", m2.CreatedAt, m1.CreatedAt)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}

func TestSendMessage_SameInstantAppendsKeepAcceptOrder(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	conv, err := svc.GetOrCreateConversation(ctx, t0, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A burst of appends that all present the same wall-clock instant, plus
	// one stepped-back outlier. Listing order must match accept order every
	// time, so the assigned timestamps must be strictly increasing.
	const n = 50
	var prev time.Time
	for i := 0; i < n; i++ {
		now := t0.Add(2 * time.Second)
		if i == n/2 {
			now = t0.Add(time.Second)
		}
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		m, err := svc.SendMessage(ctx, now, conv.ID, sender, fmt.Sprintf("msg-%03d", i))
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if !m.CreatedAt.After(prev) {
			t.Fatalf("append %d: created_at %v not strictly after %v", i, m.CreatedAt, prev)
		}
		prev = m.CreatedAt
	}

	msgs, err := svc.ListMessages(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("len = %d, want %d", len(msgs), n)
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("msg-%03d", i); m.Body != want {
			t.Fatalf("position %d holds %q, want %q", i, m.Body, want)
		}
	}
}

func TestSendMessage_AdvancesConversationPointer(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	conv, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := svc.SendMessage(ctx, now.Add(time.Second), conv.ID, "alice", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastMessageID != msg.ID {
		t.Fatalf("last_message_id = %q, want %q", got.LastMessageID, msg.ID)
	}
	if !got.LastActivityAt.Equal(msg.CreatedAt) {
		t.Fatalf("last_activity_at = %v, want %v", got.LastActivityAt, msg.CreatedAt)
	}
}

func TestSendMessage_NonParticipantPersistsNothing(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()
	now := time.Now()

	conv, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SendMessage(ctx, now, conv.ID, "mallory", "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("rejected message was persisted: %+v", msgs)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Now()

	conv, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.SendMessage(ctx, now, conv.ID, "alice", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank body: got %v, want ErrValidation", err)
	}
	long := strings.Repeat("x", MaxMessageChars+1)
	if _, err := svc.SendMessage(ctx, now, conv.ID, "alice", long); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized body: got %v, want ErrValidation", err)
	}
	if _, err := svc.SendMessage(ctx, now, "no-such-conversation", "alice", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing conversation: got %v, want ErrNotFound", err)
	}
}

func TestSendMessage_BroadcastsAfterPersist(t *testing.T) {
	capture := &captureBroadcaster{}
	svc, store := newTestService(capture)
	ctx := context.Background()
	now := time.Now()

	conv, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := svc.SendMessage(ctx, now, conv.ID, "alice", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(capture.events) != 1 || capture.events[0].ID != msg.ID {
		t.Fatalf("broadcast events = %+v, want the accepted message", capture.events)
	}
	msgs, err := store.ListMessages(ctx, conv.ID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("persisted messages = %+v (err %v)", msgs, err)
	}
}

func TestListMessages_MarksRead(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	conv, err := svc.GetOrCreateConversation(ctx, now, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SendMessage(ctx, now.Add(time.Second), conv.ID, "alice", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if !msgs[0].ReadByUser("alice") || !msgs[0].ReadByUser("bob") {
		t.Fatalf("read set = %v, want both participants", msgs[0].ReadBy)
	}

	if _, err := svc.ListMessages(ctx, conv.ID, "mallory"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider listing: got %v, want ErrForbidden", err)
	}
}

func TestListConversations_NewestActivityFirst(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	withBob, err := svc.GetOrCreateConversation(ctx, t0, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	withCarol, err := svc.GetOrCreateConversation(ctx, t0.Add(time.Minute), "alice", "carol")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Activity in the older conversation moves it back to the front.
	if _, err := svc.SendMessage(ctx, t0.Add(2*time.Minute), withBob.ID, "bob", "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	convs, err := svc.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != withBob.ID || convs[1].ID != withCarol.ID {
		t.Fatalf("unexpected ordering: %+v", convs)
	}
}
