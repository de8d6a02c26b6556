package session

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"ripple/cmd/security/token"
)

// Service implements the high-level credential operations for Ripple.
//
// It issues pairs (access + refresh), rotates them on refresh, clears them on
// logout/password reset, and validates access tokens presented to resource
// endpoints.
type Service struct {
	cfg    Config
	tokens TokenManager
	store  Store
}

// Issued is the result of issuing or rotating a credential pair.
type Issued struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service with the provided configuration, store, and token manager.
func NewService(cfg Config, store Store, tokens TokenManager) *Service {
	return &Service{cfg: cfg, store: store, tokens: tokens}
}

// Issue mints a fresh signed pair for userID and persists its digests onto
// the user record, replacing any prior pair. The previous refresh token
// becomes immediately unusable: rotation lookup will no longer find it.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string) (Issued, error) {
	issued, accessHash, refreshHash, err := s.mint(userID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.store.ReplacePair(ctx, now, userID, accessHash, refreshHash); err != nil {
		return Issued{}, err
	}
	return issued, nil
}

// Rotate performs a full refresh rotation.
//
// Order of checks:
//  1. Signature + expiry of the presented refresh token
//     (ErrTokenExpired / ErrTokenInvalid).
//  2. The stored pair still matches the presented token; a token superseded
//     by a later Issue fails with ErrSessionNotFound even though its
//     signature is still valid. This is the revocation check, executed as a
//     single conditional update so concurrent rotations with the same stale
//     token cannot both succeed.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshTokenPlain string) (Issued, string, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, "", ErrTokenInvalid
	}

	claims, err := s.tokens.Verify(refreshTokenPlain, PurposeRefresh, now)
	if err != nil {
		return Issued{}, "", err
	}

	oldHash := token.HashCredentialHex(refreshTokenPlain)

	issued, accessHash, refreshHash, err := s.mint(claims.UserID, now)
	if err != nil {
		return Issued{}, "", err
	}

	if err := s.store.RotatePair(ctx, now, claims.UserID, oldHash, accessHash, refreshHash); err != nil {
		return Issued{}, "", err
	}
	return issued, claims.UserID, nil
}

// Clear drops the user's pair (logout, password reset). Idempotent.
func (s *Service) Clear(ctx context.Context, now time.Time, userID string) error {
	return s.store.ClearPair(ctx, now, userID)
}

// VerifyAccess checks an access token statelessly: signature, expiry, purpose.
// This is the resource-server check used by the realtime gateway.
func (s *Service) VerifyAccess(accessToken string, now time.Time) (Claims, error) {
	return s.tokens.Verify(accessToken, PurposeAccess, now)
}

// ValidateAccess performs the server-authoritative check used by the REST
// middleware: stateless verification plus a comparison against the stored
// digest, so logout and password reset take effect immediately.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string, now time.Time) (Claims, error) {
	claims, err := s.VerifyAccess(accessToken, now)
	if err != nil {
		return Claims{}, err
	}

	stored, err := s.store.CurrentAccessHash(ctx, claims.UserID)
	if err != nil {
		return Claims{}, err
	}

	presented := token.HashCredentialHex(accessToken)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return Claims{}, ErrSessionNotFound
	}
	return claims, nil
}

// mint creates both halves of a pair plus their storage digests.
func (s *Service) mint(userID string, now time.Time) (Issued, string, string, error) {
	accessToken, accessExp, err := s.tokens.Issue(userID, PurposeAccess, now)
	if err != nil {
		return Issued{}, "", "", err
	}
	refreshToken, refreshExp, err := s.tokens.Issue(userID, PurposeRefresh, now)
	if err != nil {
		return Issued{}, "", "", err
	}

	issued := Issued{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}
	return issued, token.HashCredentialHex(accessToken), token.HashCredentialHex(refreshToken), nil
}
