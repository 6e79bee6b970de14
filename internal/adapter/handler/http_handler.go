package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/adapter/identity"
	"github.com/rl1809/food-flow/internal/core/service"
	"github.com/rl1809/food-flow/internal/port"
)

const requestTimeout = 30 * time.Second

type HTTPHandler struct {
	workspaces   *service.WorkspaceRegistry
	catalog      *service.CatalogService
	checkout     *service.CheckoutService
	profiles     *service.ProfileService
	orders       port.OrderRepository
	completion   port.Assistant
	health       *GRPCHandler
	clock        clock.Clock
	cookieSecure bool
}

type HTTPDeps struct {
	Workspaces   *service.WorkspaceRegistry
	Catalog      *service.CatalogService
	Checkout     *service.CheckoutService
	Profiles     *service.ProfileService
	Orders       port.OrderRepository
	Completion   port.Assistant
	Health       *GRPCHandler
	Clock        clock.Clock
	CookieSecure bool
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func NewHTTPHandler(deps HTTPDeps) *HTTPHandler {
	return &HTTPHandler{
		workspaces:   deps.Workspaces,
		catalog:      deps.Catalog,
		checkout:     deps.Checkout,
		profiles:     deps.Profiles,
		orders:       deps.Orders,
		completion:   deps.Completion,
		health:       deps.Health,
		clock:        deps.Clock,
		cookieSecure: deps.CookieSecure,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HealthCheck)
	r.Post("/functions/assistant-chat", h.AssistantCompletion)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.withWorkspace)

		r.Get("/restaurants", h.ListRestaurants)
		r.Get("/restaurants/{id}/menu", h.GetMenu)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{itemID}", h.SetCartQuantity)
			r.Delete("/items/{itemID}", h.RemoveCartItem)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Get("/session", h.GetSession)
			r.Post("/signin", h.SignIn)
			r.Post("/signup", h.SignUp)
			r.Post("/signout", h.SignOut)
			r.Get("/oauth/{provider}", h.OAuth)
			r.Get("/callback", h.OAuthCallback)
		})

		r.Get("/notices", h.DrainNotices)
		r.Get("/assistant", h.AssistantTranscript)
		r.Post("/assistant", h.AskAssistant)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/checkout", h.Checkout)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}/tracking", h.TrackOrder)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications", h.CreateNotification)
			r.Post("/notifications/read-all", h.MarkAllNotificationsRead)
			r.Post("/notifications/{id}/read", h.MarkNotificationRead)

			r.Route("/chat/{driverID}", func(r chi.Router) {
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)
				r.Post("/messages/{id}/read", h.MarkMessageRead)
				r.Post("/retry", h.RetryMessage)
				r.Delete("/failed/{id}", h.DiscardMessage)
			})
		})
	})

	return r
}

// HealthCheck serves the result of the periodic check. It pings the
// dependencies inline only before the first run completed.
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	results, ok := h.health.Last()
	if !ok {
		results = h.health.Check(r.Context())
	}

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, err := range results {
		if err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func statusFor(err error) (int, string) {
	var authErr *service.AuthError
	var apiErr *identity.APIError

	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyNotification),
		errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, service.ErrMissingProvider),
		errors.Is(err, service.ErrMissingAuthCode),
		errors.Is(err, identity.ErrNoPendingOAuth),
		errors.Is(err, service.ErrMissingDriver),
		errors.Is(err, service.ErrMissingOrder):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotSignedIn):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, service.ErrQueueFull),
		errors.Is(err, service.ErrWorkspaceClosed):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		return http.StatusUnauthorized, apiErr.Message
	case errors.As(err, &authErr):
		return http.StatusBadGateway, authErr.Op + " failed"
	}
	return http.StatusInternalServerError, "internal error"
}
