package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/reconcile"
)

const signatureHeader = "x-paystack-signature"

type Reconciler interface {
	Verify(ctx context.Context, reference, orderID string) (*reconcile.Result, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
	OrderID   string `json:"orderId"`
}

type VerifyPaymentResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type PaymentHandler struct {
	reconciler Reconciler
}

func NewPaymentHandler(reconciler Reconciler) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/verify", h.handleVerify)
}

// RegisterWebhookRoutes mounts the gateway callback. It authenticates by
// signature, not by session.
func (h *PaymentHandler) RegisterWebhookRoutes(router chi.Router) {
	router.Post("/webhooks/paystack", h.handleWebhook)
}

func (h *PaymentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to decode verify request")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.reconciler.Verify(r.Context(), req.Reference, req.OrderID)
	if err != nil {
		h.respondVerifyError(w, req, err)
		return
	}

	if !result.Success {
		respondWithJSON(w, http.StatusBadRequest, VerifyPaymentResponse{
			Success: false,
			Message: reconcile.MessageFailed,
			Error:   result.Message,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyPaymentResponse{
		Success: true,
		Message: result.Message,
		Data:    result.Data,
	})
}

func (h *PaymentHandler) respondVerifyError(w http.ResponseWriter, req VerifyPaymentRequest, err error) {
	logger := log.With().Str("reference", req.Reference).Str("order_id", req.OrderID).Logger()

	switch {
	case errors.Is(err, reconcile.ErrMissingParameters):
		respondWithError(w, http.StatusBadRequest, "Missing reference or orderId")
	case errors.Is(err, order.ErrOrderNotFound):
		logger.Warn().Err(err).Msg("Verification for unknown order")
		respondWithJSON(w, http.StatusNotFound, VerifyPaymentResponse{
			Message: reconcile.MessageFailed,
			Error:   "Order not found",
		})
	case errors.Is(err, reconcile.ErrReferenceMismatch):
		logger.Warn().Err(err).Msg("Verification reference mismatch")
		respondWithJSON(w, http.StatusBadRequest, VerifyPaymentResponse{
			Message: reconcile.MessageFailed,
			Error:   "Payment reference does not belong to this order",
		})
	default:
		logger.Error().Err(err).Msg("Payment verification failed")
		message := "Internal server error"
		if errors.Is(err, reconcile.ErrGatewayUnavailable) {
			message = "Payment gateway unavailable"
		}
		respondWithJSON(w, http.StatusInternalServerError, VerifyPaymentResponse{
			Message: reconcile.MessageFailed,
			Error:   message,
		})
	}
}

// handleWebhook answers 2xx only once the event is applied; anything else
// makes the gateway redeliver.
func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.reconciler.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader)); err != nil {
		respondWithServiceError(w, r, err, "Failed to process webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
