// Package identity implements Ripple's account foundation.
//
// It contains the User principal, registration/lookup persistence, password
// hashing (Argon2id via cmd/security/password), and ULID id helpers used by
// the HTTP and WebSocket layers.
//
// This package is intentionally dependency-light and security-first.
package identity
