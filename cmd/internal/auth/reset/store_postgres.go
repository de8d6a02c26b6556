package reset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the reset columns of ripple.users
// (reset_token_hash, reset_expires_at).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed reset token store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("reset: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// FindUserByIdentifier resolves a user id; missing users yield ("", nil).
func (s *PostgresStore) FindUserByIdentifier(ctx context.Context, emailNorm, usernameNorm string) (string, error) {
	if emailNorm == "" && usernameNorm == "" {
		return "", nil
	}

	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM ripple.users
		WHERE ($1 <> '' AND email_norm = $1)
		   OR ($2 <> '' AND username_norm = $2)
		LIMIT 1
	`, emailNorm, usernameNorm).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetResetToken installs the digest, overwriting any pending token.
func (s *PostgresStore) SetResetToken(ctx context.Context, now time.Time, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ripple.users
		SET reset_token_hash = $2,
		    reset_expires_at = $3,
		    updated_at = $4
		WHERE id = $1
	`, userID, tokenHash, expiresAt, now)
	return err
}

// ConsumeResetToken claims an unexpired digest in one conditional update, so
// a token can be consumed at most once even under concurrent confirms.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, now time.Time, tokenHash string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		UPDATE ripple.users
		SET reset_token_hash = NULL,
		    reset_expires_at = NULL,
		    updated_at = $2
		WHERE reset_token_hash = $1
		  AND reset_expires_at > $2
		RETURNING id
	`, tokenHash, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTokenNotValid
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
