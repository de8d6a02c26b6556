package identity

import (
	"context"
	"time"
)

// User is Ripple's canonical security principal.
//
// The current access/refresh credential pair lives on the user row as digests
// (at most one live pair per user); the session subsystem owns those columns
// and they are intentionally not surfaced here.
type User struct {
	ID           string
	Email        string
	EmailNorm    string
	Username     string
	UsernameNorm string
	FullName     string

	AvatarURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth couples the public principal with the password digest for login checks.
// Never serialize this type.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request.
// Email, Username and FullName are required; Password is the plaintext to hash.
type CreateUserInput struct {
	Email    string
	Username string
	FullName string
	Password string
	Now      time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser registers a new account. Email and username are unique
	// (case-insensitive); violations surface as ConflictError with the
	// offending field.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetByID loads a user by id. Missing -> ErrNotFound.
	GetByID(ctx context.Context, userID string) (User, error)

	// FindForLogin resolves a user by email or username (either may be empty,
	// not both) and returns the password digest alongside the principal.
	// Missing -> ErrNotFound.
	FindForLogin(ctx context.Context, email, username string) (UserAuth, error)

	// UpdatePassword replaces the password digest for a user.
	UpdatePassword(ctx context.Context, now time.Time, userID, passwordHash string) error
}
