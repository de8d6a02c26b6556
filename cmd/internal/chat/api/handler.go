// Package chatapi exposes the conversation and message endpoints over HTTP.
// It is a thin adapter: all semantics live in the chat engine.
package chatapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	authapi "ripple/cmd/internal/auth/api"
	"ripple/cmd/internal/chat"
)

const defaultMaxBodyBytes = 64 << 10

// Handler serves the REST side of the chat engine.
type Handler struct {
	log          *slog.Logger
	svc          *chat.Service
	maxBodyBytes int64
}

// NewHandler constructs the chat HTTP handler.
func NewHandler(log *slog.Logger, svc *chat.Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, svc: svc, maxBodyBytes: defaultMaxBodyBytes}
}

// Register wires chat routes onto the mux. Every route requires a live
// access token.
func (h *Handler) Register(mux *http.ServeMux, auth *authapi.Authenticator) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /conversations", auth.RequireAuth(h.handleCreateConversation))
	mux.HandleFunc("GET /conversations", auth.RequireAuth(h.handleListConversations))
	mux.HandleFunc("GET /conversations/{id}/messages", auth.RequireAuth(h.handleListMessages))
	mux.HandleFunc("POST /conversations/{id}/messages", auth.RequireAuth(h.handleSendMessage))
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := authapi.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createConversationRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.svc.GetOrCreateConversation(r.Context(), time.Now().UTC(), userID, req.ParticipantID)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := authapi.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	convs, err := h.svc.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationResponse(c))
	}
	writeJSON(w, http.StatusOK, conversationListResponse{Conversations: out})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := authapi.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	msgs, err := h.svc.ListMessages(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: out})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := authapi.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), time.Now().UTC(), r.PathValue("id"), userID, req.Text)
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *Handler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "not a participant of this conversation")
	default:
		h.log.ErrorContext(r.Context(), "chat.api.fail", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
