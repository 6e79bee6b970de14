package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/core/service"
)

type NotificationsResponse struct {
	Notifications []domain.FeedEvent `json:"notifications"`
	Unread        int                `json:"unread"`
}

type CreateNotificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type ThreadResponse struct {
	Messages       []domain.FeedEvent      `json:"messages"`
	Failed         []domain.PendingMessage `json:"failed"`
	Sending        bool                    `json:"sending"`
	RetryScheduled bool                    `json:"retry_scheduled"`
}

func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	feed, err := workspaceFrom(r.Context()).Notifications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("refresh") == "true" {
		feed.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{
		Notifications: feed.Events(),
		Unread:        feed.UnreadCount(),
	})
}

func (h *HTTPHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	feed, err := workspaceFrom(r.Context()).Notifications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	event, err := feed.Create(r.Context(), req.Title, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	feed, err := workspaceFrom(r.Context()).Notifications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := feed.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	feed, err := workspaceFrom(r.Context()).Notifications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := feed.MarkAllAsRead(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) thread(w http.ResponseWriter, r *http.Request) (*service.ChatThread, bool) {
	thread, err := workspaceFrom(r.Context()).Chat(r.Context(), chi.URLParam(r, "driverID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return thread, true
}

func threadState(t *service.ChatThread) ThreadResponse {
	return ThreadResponse{
		Messages:       t.Events(),
		Failed:         t.Pipeline.Failed(),
		Sending:        t.Pipeline.Sending(),
		RetryScheduled: t.Pipeline.RetryScheduled(),
	}
}

func (h *HTTPHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	t, ok := h.thread(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, threadState(t))
}

func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	t, ok := h.thread(w, r)
	if !ok {
		return
	}
	writeSendResult(w, t, t.Pipeline.Send(r.Context(), req.Content))
}

func (h *HTTPHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	t, ok := h.thread(w, r)
	if !ok {
		return
	}
	writeSendResult(w, t, t.Pipeline.Retry(r.Context(), req.Content))
}

// writeSendResult answers 201 with the confirmed row, or 502 with the
// thread state when the message went to the failed list.
func writeSendResult(w http.ResponseWriter, t *service.ChatThread, result domain.SendResult) {
	switch {
	case result.State == domain.SendConfirmed:
		writeJSON(w, http.StatusCreated, result.Message)
	case errors.Is(result.Reason, service.ErrEmptyMessage):
		writeError(w, result.Reason)
	case errors.Is(result.Reason, service.ErrPipelineClosed):
		writeError(w, service.ErrWorkspaceClosed)
	default:
		writeJSON(w, http.StatusBadGateway, threadState(t))
	}
}

func (h *HTTPHandler) DiscardMessage(w http.ResponseWriter, r *http.Request) {
	t, ok := h.thread(w, r)
	if !ok {
		return
	}
	if !t.Pipeline.Discard(chi.URLParam(r, "id")) {
		writeError(w, service.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	t, ok := h.thread(w, r)
	if !ok {
		return
	}
	if err := t.MarkAsRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
