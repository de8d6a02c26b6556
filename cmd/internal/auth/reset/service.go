// Package reset implements Ripple's password reset token lifecycle.
//
// Tokens are opaque random strings delivered out-of-band (delivery itself is
// an external collaborator); only a digest is stored, with a short expiry.
// Confirming a reset changes the password AND clears the user's live
// credential pair; a password change ends the existing session.
package reset

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"ripple/cmd/security/token"
)

const (
	defaultTokenBytes = 32
	defaultTTL        = 30 * time.Minute
)

// Requested is the result of a reset request.
// Token is the plaintext to hand to the delivery channel; it is never stored.
type Requested struct {
	UserID string
	Token  string
}

// Service manages reset token creation and consumption.
type Service struct {
	store      Store
	tokenBytes int
	ttl        time.Duration
}

// Option configures the Service.
type Option func(*Service) error

// WithTTL overrides the token lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, tokenBytes: defaultTokenBytes, ttl: defaultTTL}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Request creates a pending reset token for the account matching the
// identifier. Unknown identifiers return (Requested{}, nil): callers respond
// identically either way to avoid account enumeration.
func (s *Service) Request(ctx context.Context, now time.Time, emailNorm, usernameNorm string) (Requested, error) {
	userID, err := s.store.FindUserByIdentifier(ctx, emailNorm, usernameNorm)
	if err != nil {
		return Requested{}, err
	}
	if userID == "" {
		return Requested{}, nil
	}

	b := make([]byte, s.tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return Requested{}, err
	}
	plain := hex.EncodeToString(b)

	if err := s.store.SetResetToken(ctx, now, userID, token.HashCredentialHex(plain), now.Add(s.ttl)); err != nil {
		return Requested{}, err
	}

	return Requested{UserID: userID, Token: plain}, nil
}

// Consume claims a pending token and returns the owning user id.
// Missing, expired, and reused tokens all fail with ErrTokenNotValid.
func (s *Service) Consume(ctx context.Context, now time.Time, plain string) (string, error) {
	if plain == "" || len(plain) > 1024 {
		return "", ErrTokenNotValid
	}
	return s.store.ConsumeResetToken(ctx, now, token.HashCredentialHex(plain))
}
