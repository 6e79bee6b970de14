package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/food-flow/internal/core/domain"
	"github.com/rl1809/food-flow/internal/core/service"
)

type SignInRequest struct {
	domain.Credentials
	Redirect string `json:"redirect"`
}

type SignInResponse struct {
	Identity *domain.Identity `json:"identity"`
	Redirect string           `json:"redirect"`
}

type SignUpResponse struct {
	Identity             *domain.Identity `json:"identity"`
	ConfirmationRequired bool             `json:"confirmation_required"`
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r.Context()).Gate.Session())
}

func (h *HTTPHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ws := workspaceFrom(r.Context())
	identity, err := ws.Gate.SignIn(r.Context(), req.Credentials)
	if err != nil {
		ws.Notices.Post(domain.NoticeError, "Sign in failed", err.Error())
		writeError(w, err)
		return
	}

	ws.Notices.Post(domain.NoticeSuccess, "Signed in successfully", "Welcome back!")
	writeJSON(w, http.StatusOK, SignInResponse{
		Identity: identity,
		Redirect: service.PostLoginDestination(req.Redirect),
	})
}

func (h *HTTPHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.Credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ws := workspaceFrom(r.Context())
	identity, err := ws.Gate.SignUp(r.Context(), req)
	if err != nil {
		ws.Notices.Post(domain.NoticeError, "Sign up failed", err.Error())
		writeError(w, err)
		return
	}

	if identity == nil {
		ws.Notices.Post(domain.NoticeSuccess, "Account created", "Please check your email to confirm your account.")
	} else {
		ws.Notices.Post(domain.NoticeSuccess, "Account created", "You are now signed in.")
	}
	writeJSON(w, http.StatusCreated, SignUpResponse{Identity: identity, ConfirmationRequired: identity == nil})
}

func (h *HTTPHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	if err := ws.Gate.SignOut(r.Context()); err != nil {
		ws.Notices.Post(domain.NoticeError, "Sign out failed", err.Error())
		writeError(w, err)
		return
	}

	ws.Notices.Post(domain.NoticeInfo, "Signed out", "You have been signed out.")
	writeJSON(w, http.StatusOK, ws.Gate.Session())
}

func (h *HTTPHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	url, err := ws.Gate.SignInWithProvider(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// OAuthCallback is where the provider sends the browser back to. It redeems
// the code and redirects to the post-login destination.
func (h *HTTPHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	q := r.URL.Query()

	if desc := q.Get("error_description"); desc != "" && q.Get("code") == "" {
		ws.Notices.Post(domain.NoticeError, "Sign in failed", desc)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: desc})
		return
	}

	if _, err := ws.Gate.CompleteProviderSignIn(r.Context(), q.Get("code")); err != nil {
		ws.Notices.Post(domain.NoticeError, "Sign in failed", err.Error())
		writeError(w, err)
		return
	}

	ws.Notices.Post(domain.NoticeSuccess, "Signed in successfully", "Welcome back!")
	http.Redirect(w, r, service.PostLoginDestination(q.Get("redirect")), http.StatusSeeOther)
}

func (h *HTTPHandler) DrainNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r.Context()).Notices.Drain())
}
