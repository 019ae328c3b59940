package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/estore/internal/order"
)

type ProductCounter interface {
	CountProducts(ctx context.Context) (int, error)
}

type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

type OrderSummarizer interface {
	Summary(ctx context.Context) (*order.Summary, error)
}

type StatsResponse struct {
	TotalProducts int             `json:"total_products"`
	TotalOrders   int             `json:"total_orders"`
	TotalUsers    int             `json:"total_users"`
	Revenue       decimal.Decimal `json:"revenue"`
	RecentOrders  []order.Order   `json:"recent_orders"`
}

type AdminHandler struct {
	products ProductCounter
	users    UserCounter
	orders   OrderSummarizer
}

func NewAdminHandler(products ProductCounter, users UserCounter, orders OrderSummarizer) *AdminHandler {
	return &AdminHandler{products: products, users: users, orders: orders}
}

// RegisterRoutes expects router to be behind admin authentication.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Get("/stats", h.handleStats)
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.products.CountProducts(ctx)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load dashboard")
		return
	}

	users, err := h.users.CountUsers(ctx)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load dashboard")
		return
	}

	summary, err := h.orders.Summary(ctx)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load dashboard")
		return
	}

	recent := summary.RecentOrders
	if recent == nil {
		recent = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, StatsResponse{
		TotalProducts: products,
		TotalOrders:   summary.TotalOrders,
		TotalUsers:    users,
		Revenue:       summary.Revenue,
		RecentOrders:  recent,
	})
}
