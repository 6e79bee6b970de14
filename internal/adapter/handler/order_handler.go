package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/food-flow/internal/core/domain"
)

type CheckoutRequest struct {
	RequestID     string `json:"request_id"`
	PaymentMethod string `json:"payment_method"`
}

type CheckoutResponse struct {
	Order    domain.Order         `json:"order"`
	Tracking domain.OrderProgress `json:"tracking"`
}

type ProfileRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	ws := workspaceFrom(r.Context())
	order, err := h.checkout.PlaceOrder(r.Context(), req.RequestID, ws.Identity(), ws.Cart, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	tracking, err := ws.TrackOrder(order.ID, order.CreatedAt)
	if err != nil {
		writeError(w, err)
		return
	}

	ws.Notices.Post(domain.NoticeSuccess, "Order placed successfully!", "Your food is being prepared.")
	writeJSON(w, http.StatusCreated, CheckoutResponse{Order: order, Tracking: tracking})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := signedInUser(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// TrackOrder reports simulated progress only; the order record is never
// consulted.
func (h *HTTPHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	progress, err := ws.TrackOrder(chi.URLParam(r, "id"), h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *HTTPHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := signedInUser(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *HTTPHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID, ok := signedInUser(w, r)
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	profile, err := h.profiles.Update(r.Context(), userID, domain.Profile{
		FullName: req.FullName,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		ws.Notices.Post(domain.NoticeError, "Error updating profile", "Please try again.")
		writeError(w, err)
		return
	}

	ws.Notices.Post(domain.NoticeSuccess, "Profile updated", "Your profile has been updated successfully.")
	writeJSON(w, http.StatusOK, profile)
}
