package handler

import (
	"errors"
	"net/http"

	"github.com/rl1809/food-flow/internal/adapter/assistant"
	"github.com/rl1809/food-flow/internal/core/domain"
)

type AskRequest struct {
	Message string `json:"message"`
}

// noMessageText is the error body completion clients match on.
const noMessageText = "No message provided"

// AssistantCompletion serves the completion contract itself:
// {message, user_id, context} in, {text, suggestions} or {error} out.
func (h *HTTPHandler) AssistantCompletion(w http.ResponseWriter, r *http.Request) {
	var req domain.AssistantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	reply, err := h.completion.Complete(r.Context(), req)
	if err != nil {
		if errors.Is(err, assistant.ErrNoMessage) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: noMessageText})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *HTTPHandler) AssistantTranscript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r.Context()).Assistant.Transcript())
}

func (h *HTTPHandler) AskAssistant(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ws := workspaceFrom(r.Context())
	userID := ""
	if identity := ws.Identity(); identity != nil {
		userID = identity.UserID
	}

	reply, err := ws.Assistant.Ask(r.Context(), userID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
