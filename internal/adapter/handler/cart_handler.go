package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/food-flow/internal/core/domain"
)

type AddCartItemRequest struct {
	ItemID string `json:"item_id"`
}

type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type MenuResponse struct {
	Restaurant domain.Restaurant `json:"restaurant"`
	Items      []domain.MenuItem `json:"items"`
}

func (h *HTTPHandler) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.catalog.ListRestaurants(r.Context(), domain.RestaurantFilter{
		Cuisine: r.URL.Query().Get("cuisine"),
		Query:   r.URL.Query().Get("q"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurants)
}

func (h *HTTPHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	restaurant, items, err := h.catalog.ListMenu(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MenuResponse{Restaurant: *restaurant, Items: items})
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r.Context()).Cart.Snapshot())
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r.Context()).Cart.Clear(r.Context()))
}

// AddCartItem resolves the item through the catalog so prices always come
// from the server.
func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "item_id is required"})
		return
	}

	item, err := h.catalog.GetMenuItem(r.Context(), req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}

	ws := workspaceFrom(r.Context())
	snapshot := ws.Cart.AddItem(r.Context(), item)
	ws.Notices.Post(domain.NoticeSuccess, "Added to cart", item.Name+" has been added to your cart.")
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *HTTPHandler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ws := workspaceFrom(r.Context())
	writeJSON(w, http.StatusOK, ws.Cart.SetQuantity(r.Context(), chi.URLParam(r, "itemID"), req.Quantity))
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	writeJSON(w, http.StatusOK, ws.Cart.RemoveItem(r.Context(), chi.URLParam(r, "itemID")))
}
