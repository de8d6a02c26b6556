package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (ripple.users).
//
// Expected schema:
//
//	CREATE TABLE ripple.users (
//	    id                 text PRIMARY KEY,
//	    email              text NOT NULL,
//	    email_norm         text NOT NULL UNIQUE,
//	    username           text NOT NULL,
//	    username_norm      text NOT NULL UNIQUE,
//	    full_name          text NOT NULL,
//	    password_hash      text NOT NULL,
//	    avatar_url         text,
//	    access_token_hash  text,
//	    refresh_token_hash text,
//	    token_updated_at   timestamptz,
//	    reset_token_hash   text,
//	    reset_expires_at   timestamptz,
//	    created_at         timestamptz NOT NULL,
//	    updated_at         timestamptz NOT NULL
//	);
//
// The pool is owned by the caller; this store only borrows it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const userColumns = `id, email, username, full_name, avatar_url, created_at, updated_at`

// CreateUser registers a new account, surfacing uniqueness conflicts per field.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if email == "" || username == "" || fullName == "" || in.Password == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing required field"}
	}
	if !ValidEmail(email) {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ripple.users (
			id, email, email_norm, username, username_norm,
			full_name, password_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id, email, NormalizeEmail(email), username, NormalizeUsername(username), fullName, hash, now)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		Username:     username,
		UsernameNorm: NormalizeUsername(username),
		FullName:     fullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByID loads a user by id.
func (s *PostgresStore) GetByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetByID"

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM ripple.users WHERE id = $1`, userID)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// FindForLogin resolves a user by email or username for credential checks.
func (s *PostgresStore) FindForLogin(ctx context.Context, email, username string) (UserAuth, error) {
	const op = "identity.FindForLogin"

	emailNorm := NormalizeEmail(email)
	usernameNorm := NormalizeUsername(username)
	if emailNorm == "" && usernameNorm == "" {
		return UserAuth{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email or username required"}
	}

	var (
		u    User
		hash string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM ripple.users
		WHERE ($1 <> '' AND email_norm = $1)
		   OR ($2 <> '' AND username_norm = $2)
		LIMIT 1
	`, emailNorm, usernameNorm).Scan(
		&u.ID, &u.Email, &u.Username, &u.FullName, &u.AvatarURL,
		&u.CreatedAt, &u.UpdatedAt, &hash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return UserAuth{}, err
	}

	u.EmailNorm = NormalizeEmail(u.Email)
	u.UsernameNorm = NormalizeUsername(u.Username)

	return UserAuth{User: u, PasswordHash: hash}, nil
}

// UpdatePassword replaces the password digest for a user.
func (s *PostgresStore) UpdatePassword(ctx context.Context, now time.Time, userID, passwordHash string) error {
	const op = "identity.UpdatePassword"

	tag, err := s.pool.Exec(ctx, `
		UPDATE ripple.users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.EmailNorm = NormalizeEmail(u.Email)
	u.UsernameNorm = NormalizeUsername(u.Username)
	return u, nil
}

// uniqueViolationField maps a Postgres unique violation to the logical field name.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	case strings.Contains(pgErr.ConstraintName, "username"):
		return "username", true
	default:
		return "unique", true
	}
}
