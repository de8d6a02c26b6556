package session

import (
	"context"
	"time"
)

// Store abstracts persistence for the per-user credential pair.
//
// Implementations must make RotatePair a single conditional update: two
// near-simultaneous rotations with the same (already superseded) refresh
// digest must not both succeed.
type Store interface {
	// ReplacePair installs a new pair for a user, overwriting any prior pair.
	// Used by login and by the refresh path after RotatePair resolves the user.
	ReplacePair(ctx context.Context, now time.Time, userID, accessHash, refreshHash string) error

	// RotatePair atomically replaces the stored pair, but only if the
	// currently stored refresh digest equals oldRefreshHash for that user.
	// A non-matching digest -> ErrSessionNotFound (the pair was already
	// rotated away, or cleared by logout/password reset).
	RotatePair(ctx context.Context, now time.Time, userID, oldRefreshHash, newAccessHash, newRefreshHash string) error

	// ClearPair removes the stored pair for a user. Idempotent.
	ClearPair(ctx context.Context, now time.Time, userID string) error

	// CurrentAccessHash returns the stored access digest for a user.
	// No live pair -> ErrSessionNotFound.
	CurrentAccessHash(ctx context.Context, userID string) (string, error)
}
