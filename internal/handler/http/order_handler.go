package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/estore/internal/archive"
	"github.com/vasiliy-maslov/estore/internal/auth"
	"github.com/vasiliy-maslov/estore/internal/checkout"
	"github.com/vasiliy-maslov/estore/internal/order"
)

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Response, error)
	RetryPayment(ctx context.Context, userID, email string, orderID uuid.UUID) (*checkout.Response, error)
}

type CheckoutItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Image     string          `json:"image"`
	Category  string          `json:"category"`
}

// ShippingRequest rejects missing fields here. Whitespace-only values are
// caught by the checkout service.
type ShippingRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,max=32"`
	Address   string `json:"address" validate:"required,max=500"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	ZipCode   string `json:"zip_code" validate:"max=20"`
}

type CheckoutRequest struct {
	Items        []CheckoutItemRequest `json:"items" validate:"dive"`
	ShippingInfo ShippingRequest       `json:"shipping_info"`
}

type UpdateStatusRequest struct {
	Status   string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
	Override bool   `json:"override"`
	Reason   string `json:"reason" validate:"max=500"`
}

type OrderHandler struct {
	orders   order.Service
	checkout Checkouter
	archive  archive.Store
	validate *validator.Validate
}

func NewOrderHandler(orders order.Service, checkout Checkouter, archive archive.Store) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout, archive: archive, validate: newValidator()}
}

// RegisterRoutes expects router to be behind authentication.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout", h.handleCheckout)
	router.Get("/orders", h.handleListOwnOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Post("/orders/{id}/payments", h.handleRetryPayment)
}

// RegisterAdminRoutes expects router to be behind admin authentication.
func (h *OrderHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/orders", h.handleListAllOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Get("/orders/{id}/history", h.handleStatusHistory)
	router.Get("/payments", h.handleListPayments)
	router.Get("/payments/{reference}/events", h.handlePaymentEvents)
}

func viewerOf(s auth.Session) order.Viewer {
	return order.Viewer{UserID: s.UserID, IsAdmin: s.IsAdmin}
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	items := make([]order.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.Item{
			ProductID: uuid.FromStringOrNil(item.ProductID),
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Category:  item.Category,
		})
	}

	resp, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID: session.UserID,
		Email:  session.Email,
		Items:  items,
		Shipping: order.ShippingInfo{
			FirstName: req.ShippingInfo.FirstName,
			LastName:  req.ShippingInfo.LastName,
			Email:     req.ShippingInfo.Email,
			Phone:     req.ShippingInfo.Phone,
			Address:   req.ShippingInfo.Address,
			City:      req.ShippingInfo.City,
			State:     req.ShippingInfo.State,
			ZipCode:   req.ShippingInfo.ZipCode,
		},
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to place order")
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) handleRetryPayment(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.checkout.RetryPayment(r.Context(), session.UserID, session.Email, id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to start payment")
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) handleListOwnOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, false)
}

func (h *OrderHandler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, true)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request, all bool) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), viewerOf(session), all)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load orders")
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), viewerOf(session), id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load order")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	updated, err := h.orders.UpdateStatus(r.Context(), order.StatusUpdate{
		OrderID:  id,
		Status:   order.Status(req.Status),
		Override: req.Override,
		Reason:   req.Reason,
		ActorID:  session.UserID,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update order status")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	history, err := h.orders.StatusHistory(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load status history")
		return
	}
	if history == nil {
		history = []order.StatusChange{}
	}
	respondWithJSON(w, http.StatusOK, history)
}

func (h *OrderHandler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.orders.ListPayments(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load payments")
		return
	}
	if payments == nil {
		payments = []order.Payment{}
	}
	respondWithJSON(w, http.StatusOK, payments)
}

func (h *OrderHandler) handlePaymentEvents(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		respondWithError(w, http.StatusBadRequest, "Reference parameter cannot be empty")
		return
	}

	records, err := h.archive.FindByReference(r.Context(), reference)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load payment events")
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	respondWithJSON(w, http.StatusOK, records)
}
