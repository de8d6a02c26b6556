package reset

import (
	"context"
	"time"
)

// Store abstracts persistence for pending password reset tokens.
// A user has at most one pending token; requesting again overwrites it.
type Store interface {
	// FindUserByIdentifier resolves a user id by normalized email or username.
	// Missing users are NOT an error at this boundary: the request flow must
	// not reveal account existence. Missing -> ("", nil).
	FindUserByIdentifier(ctx context.Context, emailNorm, usernameNorm string) (string, error)

	// SetResetToken installs the token digest and its expiry for a user.
	SetResetToken(ctx context.Context, now time.Time, userID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken atomically claims an unexpired token digest and clears
	// it, returning the owning user id. No match -> ErrTokenNotValid.
	ConsumeResetToken(ctx context.Context, now time.Time, tokenHash string) (string, error)
}
