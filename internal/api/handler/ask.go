package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Rrens/thread-router/internal/api/response"
	"github.com/Rrens/thread-router/internal/service"
)

// AskHandler handles question routing
type AskHandler struct {
	conversation Conversation
}

// NewAskHandler creates a new ask handler
func NewAskHandler(conversation Conversation) *AskHandler {
	return &AskHandler{conversation: conversation}
}

// Ask forwards a question to the user's thread and returns the reply
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req service.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.Fail(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	result, err := h.conversation.RouteQuestion(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, result)
}
