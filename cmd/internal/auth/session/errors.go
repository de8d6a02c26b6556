package session

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature or structural verification.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned when a token is well-formed and signed but past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionNotFound is returned when a verified refresh token does not
	// match the pair currently stored for its user, meaning it has been
	// superseded by a later Issue, or the user logged out.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
