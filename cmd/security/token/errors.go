package token

import "errors"

var (
	// ErrHMACKeyMissing indicates RIPPLE_TOKEN_HMAC_KEY is required but absent.
	ErrHMACKeyMissing = errors.New("token hmac key missing")

	// ErrHMACKeyTooShort indicates the configured key does not meet the minimum length.
	ErrHMACKeyTooShort = errors.New("token hmac key too short")
)
