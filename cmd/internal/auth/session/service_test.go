package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// memStore is an in-memory Store used to exercise the rotation protocol
// without a database. RotatePair mirrors the conditional-update contract.
type memStore struct {
	mu    sync.Mutex
	pairs map[string][2]string // userID -> [accessHash, refreshHash]
}

func newMemStore() *memStore {
	return &memStore{pairs: make(map[string][2]string)}
}

func (m *memStore) ReplacePair(_ context.Context, _ time.Time, userID, accessHash, refreshHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs[userID] = [2]string{accessHash, refreshHash}
	return nil
}

func (m *memStore) RotatePair(_ context.Context, _ time.Time, userID, oldRefreshHash, newAccessHash, newRefreshHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pairs[userID]
	if !ok || cur[1] != oldRefreshHash {
		return ErrSessionNotFound
	}
	m.pairs[userID] = [2]string{newAccessHash, newRefreshHash}
	return nil
}

func (m *memStore) ClearPair(_ context.Context, _ time.Time, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pairs, userID)
	return nil
}

func (m *memStore) CurrentAccessHash(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pairs[userID]
	if !ok || cur[0] == "" {
		return "", ErrSessionNotFound
	}
	return cur[0], nil
}

func testService(t *testing.T) (*Service, *memStore) {
	t.Helper()

	secret := paseto.NewV4AsymmetricSecretKey()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = secret.ExportHex()

	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	store := newMemStore()
	return NewService(cfg, store, mgr), store
}

func TestIssueAndVerifyAccess(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := svc.Issue(ctx, now, "01HUSER000000000000000000A")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.AccessToken == "" || issued.RefreshToken == "" {
		t.Fatalf("expected both tokens")
	}
	if !issued.RefreshExp.After(issued.AccessExp) {
		t.Fatalf("refresh must outlive access")
	}

	claims, err := svc.VerifyAccess(issued.AccessToken, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "01HUSER000000000000000000A" {
		t.Fatalf("claims user mismatch: %q", claims.UserID)
	}

	// A refresh token is not an access token.
	if _, err := svc.VerifyAccess(issued.RefreshToken, now.Add(time.Second)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong purpose, got %v", err)
	}
}

func TestRotate_SucceedsExactlyOnce(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000B")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p2, userID, err := svc.Rotate(ctx, now.Add(time.Minute), p1.RefreshToken)
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	if userID != "01HUSER000000000000000000B" {
		t.Fatalf("rotate user mismatch: %q", userID)
	}
	if p2.RefreshToken == p1.RefreshToken {
		t.Fatalf("rotation must mint a new refresh token")
	}

	// The superseded token is cryptographically valid but no longer matches
	// the stored pair.
	if _, _, err := svc.Rotate(ctx, now.Add(2*time.Minute), p1.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for stale refresh, got %v", err)
	}

	// The fresh token still works.
	if _, _, err := svc.Rotate(ctx, now.Add(3*time.Minute), p2.RefreshToken); err != nil {
		t.Fatalf("rotate with fresh token: %v", err)
	}
}

func TestRotate_ExpiredAndInvalid(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000C")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	after := now.Add(DefaultConfig().RefreshTokenTTL + time.Hour)
	if _, _, err := svc.Rotate(ctx, after, p1.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, _, err := svc.Rotate(ctx, now, "v4.public.garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, _, err := svc.Rotate(ctx, now, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}

	// An access token presented to Rotate must be rejected by purpose.
	if _, _, err := svc.Rotate(ctx, now, p1.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestClear_InvalidatesPair(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000D")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := svc.Clear(ctx, now, "01HUSER000000000000000000D"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	// Idempotent.
	if err := svc.Clear(ctx, now, "01HUSER000000000000000000D"); err != nil {
		t.Fatalf("second Clear: %v", err)
	}

	if _, _, err := svc.Rotate(ctx, now.Add(time.Minute), p1.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after Clear, got %v", err)
	}
	if _, err := svc.ValidateAccess(ctx, p1.AccessToken, now.Add(time.Minute)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for cleared access, got %v", err)
	}
}

func TestValidateAccess_StoredDigestMustMatch(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000E")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.ValidateAccess(ctx, p1.AccessToken, now.Add(time.Second)); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}

	// Issuing again replaces the pair; the old access token is still signed
	// and unexpired but no longer matches the stored digest.
	if _, err := svc.Issue(ctx, now.Add(time.Minute), "01HUSER000000000000000000E"); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if _, err := svc.ValidateAccess(ctx, p1.AccessToken, now.Add(2*time.Minute)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for replaced access, got %v", err)
	}
}

func TestIssue_MintsAreDistinctWithinOneSecond(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Time claims carry one-second resolution; two mints at the exact same
	// instant must still produce distinct tokens or overwrite-revocation
	// silently stops revoking.
	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000F")
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	p2, err := svc.Issue(ctx, now, "01HUSER000000000000000000F")
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	if p1.AccessToken == p2.AccessToken {
		t.Fatalf("access tokens from same-instant mints are identical")
	}
	if p1.RefreshToken == p2.RefreshToken {
		t.Fatalf("refresh tokens from same-instant mints are identical")
	}
}

func TestRotate_RevokesOldTokenWithinOneSecond(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p1, err := svc.Issue(ctx, now, "01HUSER000000000000000000G")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Rotation in the same second as the login that minted the pair: the
	// replacement pair must not collide with the one it revokes.
	p2, _, err := svc.Rotate(ctx, now, p1.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if p2.RefreshToken == p1.RefreshToken {
		t.Fatalf("rotation reinstated the token it was revoking")
	}

	if _, _, err := svc.Rotate(ctx, now, p1.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound replaying the old refresh, got %v", err)
	}
	if _, _, err := svc.Rotate(ctx, now, p2.RefreshToken); err != nil {
		t.Fatalf("rotate with fresh token: %v", err)
	}
}
