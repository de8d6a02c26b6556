package app

import (
	"errors"

	"ripple/cmd/security/token"
)

// ValidateSecurityConfig enforces Ripple's security policy at startup.
// Fail-fast: silently falling back to unkeyed digests in production is not
// acceptable when the policy demands HMAC.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// 32 bytes minimum for an HMAC-SHA256 secret, measured in raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: RIPPLE_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: RIPPLE_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is too short (min 32 bytes)")
		default:
			return err
		}
	}

	return nil
}
