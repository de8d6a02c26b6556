package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the credential columns of
// ripple.users (access_token_hash, refresh_token_hash, token_updated_at).
//
// The single-row-per-user layout is what makes overwrite-revocation work:
// there is nowhere for a second live pair to exist.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed credential pair store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ReplacePair unconditionally installs a new pair for the user.
func (s *PostgresStore) ReplacePair(ctx context.Context, now time.Time, userID, accessHash, refreshHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ripple.users
		SET access_token_hash = $2,
		    refresh_token_hash = $3,
		    token_updated_at = $4
		WHERE id = $1
	`, userID, accessHash, refreshHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RotatePair is the revocation-enforcing conditional update: the WHERE clause
// matches the stored refresh digest, so a stale token updates zero rows.
func (s *PostgresStore) RotatePair(ctx context.Context, now time.Time, userID, oldRefreshHash, newAccessHash, newRefreshHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ripple.users
		SET access_token_hash = $3,
		    refresh_token_hash = $4,
		    token_updated_at = $5
		WHERE id = $1 AND refresh_token_hash = $2
	`, userID, oldRefreshHash, newAccessHash, newRefreshHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ClearPair drops both digests as a unit (logout, password reset). Idempotent.
func (s *PostgresStore) ClearPair(ctx context.Context, now time.Time, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ripple.users
		SET access_token_hash = NULL,
		    refresh_token_hash = NULL,
		    token_updated_at = $2
		WHERE id = $1
	`, userID, now)
	return err
}

// CurrentAccessHash returns the stored access digest for a user.
func (s *PostgresStore) CurrentAccessHash(ctx context.Context, userID string) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, `
		SELECT access_token_hash FROM ripple.users WHERE id = $1
	`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	if hash == nil || *hash == "" {
		return "", ErrSessionNotFound
	}
	return *hash, nil
}
