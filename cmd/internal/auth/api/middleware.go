package authapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ripple/cmd/internal/auth/session"
)

type contextKey struct{ name string }

var userIDKey = contextKey{"auth.user_id"}

// UserID returns the authenticated user id placed by RequireAuth.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticator is the bearer-token middleware for resource endpoints.
//
// It uses the server-authoritative check: token signature and expiry plus a
// comparison against the stored digest, so a logout or a newer login cuts
// off older access tokens immediately.
type Authenticator struct {
	sessions *session.Service
}

// NewAuthenticator builds the middleware. sessions may be nil when the
// server runs without a database; every guarded route then returns 503.
func NewAuthenticator(sessions *session.Service) *Authenticator {
	return &Authenticator{sessions: sessions}
}

// RequireAuth wraps a handler, rejecting requests without a live access token.
func (a *Authenticator) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil || a.sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing access token")
			return
		}

		claims, err := a.sessions.ValidateAccess(r.Context(), token, time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired access token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, claims.UserID)))
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
