package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/core/service"
)

const (
	WorkspaceCookie    = "ff_workspace"
	workspaceCookieAge = 30 * 24 * time.Hour
)

type ctxKey int

const workspaceKey ctxKey = iota

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// withWorkspace attaches the caller's workspace, issuing a new workspace
// cookie to clients that do not carry a valid one.
func (h *HTTPHandler) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(WorkspaceCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     WorkspaceCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(workspaceCookieAge / time.Second),
				HttpOnly: true,
				Secure:   h.cookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ws := h.workspaces.Get(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), workspaceKey, ws)))
	})
}

func workspaceFrom(ctx context.Context) *service.Workspace {
	ws, _ := ctx.Value(workspaceKey).(*service.Workspace)
	return ws
}

// requireSession answers 503 while the session is still loading and 401
// with the login location when nobody is signed in.
func (h *HTTPHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := workspaceFrom(r.Context())

		decision, redirect := ws.Gate.Authorize(r.URL.RequestURI())
		switch decision {
		case service.AccessDefer:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "session is loading"})
		case service.AccessRedirect:
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "sign in required", Redirect: redirect})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// signedInUser returns the current user id. The session may have ended
// after requireSession ran, so callers must still check.
func signedInUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := workspaceFrom(r.Context()).Identity()
	if identity == nil {
		writeError(w, service.ErrNotSignedIn)
		return "", false
	}
	return identity.UserID, true
}
