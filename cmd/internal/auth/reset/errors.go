package reset

import "errors"

var (
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenNotValid covers missing, expired, and already-consumed reset
	// tokens. One indistinguishable failure avoids token probing.
	ErrTokenNotValid = errors.New("reset token not valid")
)
