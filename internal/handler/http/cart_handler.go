package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/estore/internal/cart"
)

type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items     []cart.Item     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{service: service, validate: newValidator()}
}

// RegisterRoutes expects router to be behind authentication.
func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Delete("/cart", h.handleClearCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Patch("/cart/items/{productId}", h.handleUpdateItem)
	router.Delete("/cart/items/{productId}", h.handleRemoveItem)
}

func toCartResponse(c *cart.Cart) CartResponse {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	return CartResponse{Items: items, Total: c.Total(), ItemCount: c.ItemCount()}
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), session.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load cart")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	c, err := h.service.AddItem(r.Context(), session.UserID, uuid.FromStringOrNil(req.ProductID), req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to add item to cart")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	productID, ok := parseUUIDParam(w, r, "productId")
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	c, err := h.service.UpdateItem(r.Context(), session.UserID, productID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	productID, ok := parseUUIDParam(w, r, "productId")
	if !ok {
		return
	}

	c, err := h.service.RemoveItem(r.Context(), session.UserID, productID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to remove cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), session.UserID); err != nil {
		respondWithServiceError(w, r, err, "Failed to clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
