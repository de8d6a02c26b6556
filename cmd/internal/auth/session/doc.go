// Package session implements Ripple's credential lifecycle.
//
// A user has at most one live session: the user row stores digests of the
// current access/refresh token pair, and issuing a new pair overwrites the
// old one. Rotation is therefore self-enforcing: a refresh token that was
// superseded no longer matches any row, even while its signature is still
// cryptographically valid. There is no denylist and no session table.
//
// Access and refresh tokens are both PASETO v4.public, carrying the user id
// and a purpose discriminator as their only claims. Plaintext tokens are
// never persisted; storage holds HMAC-SHA256/SHA-256 digests
// (cmd/security/token).
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
