// Package token provides hashing primitives for credential storage.
//
// Ripple never persists a bearer credential in plaintext: the user row holds
// digests of the current access/refresh pair and of any pending password
// reset token. Digests are HMAC-SHA256 when RIPPLE_TOKEN_HMAC_KEY is set,
// SHA-256 otherwise (dev fallback).
package token
