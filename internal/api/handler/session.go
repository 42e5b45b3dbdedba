package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Rrens/thread-router/internal/api/middleware"
	"github.com/Rrens/thread-router/internal/api/response"
	"github.com/Rrens/thread-router/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes registry administration
type SessionHandler struct {
	registry Registry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// List returns every registered session
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns the thread registered for a user
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")

	threadID, err := h.registry.ThreadForUser(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]string{
		"user_identity": user,
		"thread_id":     threadID,
	})
}

// Put binds a user to an existing thread
func (h *SessionHandler) Put(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")

	var req domain.SessionUpsert
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.registry.Assign(r.Context(), user, req); err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]string{
		"user_identity": user,
		"thread_id":     req.ThreadID,
	})
}

// Delete removes a user's session
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")

	deleted, err := h.registry.Remove(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]any{
		"user_identity": user,
		"deleted":       deleted,
	})
}

// Clear removes every session; requires ?confirm=true
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	removed, err := h.registry.Clear(r.Context(), confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	subject, _ := middleware.GetAdminSubject(r.Context())
	log.Warn().Str("admin", subject).Int64("removed", removed).Msg("Registry cleared over HTTP")

	response.OK(w, map[string]any{
		"removed": removed,
	})
}

// ThreadOwner returns the user registered for a thread
func (h *SessionHandler) ThreadOwner(w http.ResponseWriter, r *http.Request) {
	threadID := pathParam(r, "threadID")

	user, err := h.registry.UserForThread(r.Context(), threadID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]string{
		"user_identity": user,
		"thread_id":     threadID,
	})
}
