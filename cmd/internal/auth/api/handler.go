// Package authapi exposes Ripple's account and session lifecycle over HTTP:
// register, login, refresh rotation, logout, profile, and password reset.
package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ripple/cmd/identity"
	"ripple/cmd/internal/auth/reset"
	"ripple/cmd/internal/auth/session"
)

// Handler wires the HTTP auth endpoints to the identity, session and reset
// services.
type Handler struct {
	log *slog.Logger
	cfg Config

	identity identity.Store
	sessions *session.Service
	resets   *reset.Service

	emailSender EmailSender
	throttle    *loginThrottle

	// Dummy hash for timing-resistant login checks on unknown accounts.
	dummyHash string
}

// HandlerOption configures optional handler collaborators.
type HandlerOption func(*Handler)

// WithEmailSender overrides the default no-op reset email sender.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if sender != nil {
			h.emailSender = sender
		}
	}
}

// NewHandler constructs the auth handler.
func NewHandler(log *slog.Logger, cfg Config, idStore identity.Store, sessions *session.Service, resets *reset.Service, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:         log,
		cfg:         cfg,
		identity:    idStore,
		sessions:    sessions,
		resets:      resets,
		emailSender: NoopEmailSender{Log: log},
		throttle:    newLoginThrottle(cfg.LoginRatePerMinute, cfg.LoginBurst, cfg.LoginThrottleIdle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux, auth *Authenticator) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /refresh", h.handleRefresh)
	mux.HandleFunc("POST /logout", auth.RequireAuth(h.handleLogout))
	mux.HandleFunc("POST /password-reset/request", h.handleResetRequest)
	mux.HandleFunc("POST /password-reset/confirm", h.handleResetConfirm)
	mux.HandleFunc("GET /me", auth.RequireAuth(h.handleMe))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, err := h.identity.CreateUser(ctx, identity.CreateUserInput{
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
		Now:      now,
	})
	if err != nil {
		var conflict identity.ConflictError
		switch {
		case errors.As(err, &conflict):
			writeError(w, http.StatusConflict, conflict.Field+" already in use")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.ErrorContext(ctx, "auth.register.fail", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	issued, err := h.sessions.Issue(ctx, now, user.ID)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.register.issue_fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.InfoContext(ctx, "auth.register.ok", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, authResponse{
		User:   toUserResponse(user),
		Tokens: toTokenResponse(issued),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if (email == "" && username == "") || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email or username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	identifier := identity.NormalizeEmail(email)
	if identifier == "" {
		identifier = identity.NormalizeUsername(username)
	}
	if !h.throttle.Allow(identifier, now) {
		h.log.InfoContext(ctx, "auth.login.throttled", slog.String("identifier", identifier))
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	userAuth, err := h.identity.FindForLogin(ctx, email, username)
	if err != nil {
		// Same work and same answer as a bad password: account existence
		// must not be observable.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, userAuth.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Issue replaces any prior pair: logging in on a new device signs the
	// old one out.
	issued, err := h.sessions.Issue(ctx, now, userAuth.User.ID)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.login.issue_fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.InfoContext(ctx, "auth.login.ok", slog.String("user_id", userAuth.User.ID))
	writeJSON(w, http.StatusOK, authResponse{
		User:   toUserResponse(userAuth.User),
		Tokens: toTokenResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, userID, err := h.sessions.Rotate(ctx, now, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, session.ErrTokenInvalid), errors.Is(err, session.ErrSessionNotFound):
			// A structurally valid but superseded token lands here too.
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			h.log.ErrorContext(ctx, "auth.refresh.fail", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.log.InfoContext(ctx, "auth.refresh.ok", slog.String("user_id", userID))
	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	ctx := r.Context()
	if err := h.sessions.Clear(ctx, time.Now().UTC(), userID); err != nil {
		h.log.ErrorContext(ctx, "auth.logout.fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.InfoContext(ctx, "auth.logout.ok", slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.identity.GetByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.ErrorContext(r.Context(), "auth.me.fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	emailNorm := identity.NormalizeEmail(req.Email)
	usernameNorm := identity.NormalizeUsername(req.Username)
	if emailNorm == "" && usernameNorm == "" {
		writeError(w, http.StatusBadRequest, "email or username is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	requested, err := h.resets.Request(ctx, now, emailNorm, usernameNorm)
	if err != nil {
		h.log.ErrorContext(ctx, "auth.reset_request.fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Deliver out-of-band only when the account exists; the response is the
	// same either way.
	if requested.Token != "" {
		user, err := h.identity.GetByID(ctx, requested.UserID)
		if err == nil {
			if err := h.emailSender.SendPasswordReset(ctx, user.Email, requested.Token); err != nil {
				h.log.ErrorContext(ctx, "auth.reset_request.send_fail", slog.String("error", err.Error()))
			}
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the account exists, reset instructions have been sent",
	})
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// Hash first: a policy-rejected password must not burn the token.
	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := h.resets.Consume(ctx, now, strings.TrimSpace(req.Token))
	if err != nil {
		// Missing, expired and reused tokens are indistinguishable.
		if errors.Is(err, reset.ErrTokenNotValid) {
			writeError(w, http.StatusUnauthorized, "invalid or expired reset token")
			return
		}
		h.log.ErrorContext(ctx, "auth.reset_confirm.fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.identity.UpdatePassword(ctx, now, userID, hash); err != nil {
		h.log.ErrorContext(ctx, "auth.reset_confirm.update_fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// A password change ends the live session as a unit with the change.
	if err := h.sessions.Clear(ctx, now, userID); err != nil {
		h.log.ErrorContext(ctx, "auth.reset_confirm.clear_fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.InfoContext(ctx, "auth.reset_confirm.ok", slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}
