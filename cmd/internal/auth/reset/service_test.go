package reset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ripple/cmd/security/token"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]string // identifier -> userID
	pending map[string]entry  // tokenHash -> entry
}

type entry struct {
	userID    string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]string), pending: make(map[string]entry)}
}

func (m *memStore) FindUserByIdentifier(_ context.Context, emailNorm, usernameNorm string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[emailNorm]; ok {
		return id, nil
	}
	if id, ok := m.users[usernameNorm]; ok {
		return id, nil
	}
	return "", nil
}

func (m *memStore) SetResetToken(_ context.Context, _ time.Time, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// One pending token per user: drop older entries for this user.
	for h, e := range m.pending {
		if e.userID == userID {
			delete(m.pending, h)
		}
	}
	m.pending[tokenHash] = entry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) ConsumeResetToken(_ context.Context, now time.Time, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[tokenHash]
	if !ok || !e.expiresAt.After(now) {
		return "", ErrTokenNotValid
	}
	delete(m.pending, tokenHash)
	return e.userID, nil
}

func TestRequestAndConsume(t *testing.T) {
	store := newMemStore()
	store.users["ada@example.com"] = "user-1"

	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	req, err := svc.Request(ctx, now, "ada@example.com", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.UserID != "user-1" || req.Token == "" {
		t.Fatalf("unexpected result: %+v", req)
	}
	if _, ok := store.pending[req.Token]; ok {
		t.Fatalf("plaintext token must not be stored")
	}
	if _, ok := store.pending[token.HashCredentialHex(req.Token)]; !ok {
		t.Fatalf("digest must be stored")
	}

	userID, err := svc.Consume(ctx, now.Add(time.Minute), req.Token)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("consume user mismatch: %q", userID)
	}

	// Single use.
	if _, err := svc.Consume(ctx, now.Add(2*time.Minute), req.Token); !errors.Is(err, ErrTokenNotValid) {
		t.Fatalf("expected ErrTokenNotValid on reuse, got %v", err)
	}
}

func TestRequest_UnknownIdentifierIsSilent(t *testing.T) {
	svc, err := NewService(newMemStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	req, err := svc.Request(context.Background(), time.Now().UTC(), "ghost@example.com", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.UserID != "" || req.Token != "" {
		t.Fatalf("unknown identifier must yield an empty result, got %+v", req)
	}
}

func TestConsume_Expired(t *testing.T) {
	store := newMemStore()
	store.users["ada@example.com"] = "user-1"

	svc, err := NewService(store, WithTTL(10*time.Minute))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	req, err := svc.Request(ctx, now, "ada@example.com", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if _, err := svc.Consume(ctx, now.Add(11*time.Minute), req.Token); !errors.Is(err, ErrTokenNotValid) {
		t.Fatalf("expected ErrTokenNotValid for expired token, got %v", err)
	}
}
