package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/auth"
	"github.com/vasiliy-maslov/estore/internal/cart"
	"github.com/vasiliy-maslov/estore/internal/catalog"
	"github.com/vasiliy-maslov/estore/internal/checkout"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/reconcile"
	"github.com/vasiliy-maslov/estore/internal/user"
)

const maxBodyBytes = 1 << 20

// respondWithError sends {"error": message}.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// sessionFrom returns the caller's session. Routes using it sit behind the
// auth middleware, so a missing session is a wiring bug.
func sessionFrom(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		log.Error().Str("path", r.URL.Path).Msg("No session in request context")
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
	}
	return session, ok
}

func mapErrorToStatusCode(err error) int {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrPaymentNotFound),
		errors.Is(err, cart.ErrItemNotInCart):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, user.ErrInvalidProfile),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrOverrideReasonRequired),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, reconcile.ErrMissingParameters),
		errors.Is(err, reconcile.ErrReferenceMismatch),
		errors.Is(err, reconcile.ErrMalformedWebhook):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrCannotChangeOwnAdmin):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrCategoryNameExists),
		errors.Is(err, catalog.ErrCategoryInUse),
		errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, checkout.ErrPaymentNotAccepted),
		errors.Is(err, cart.ErrProductUnavailable):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrGatewayInitialization):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the user-facing text for err. Unexpected errors get the
// fallback so internals do not leak.
func clientMessage(err error, fallback string) string {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		return "Validation failed"
	case errors.Is(err, user.ErrNotFound):
		return "User not found"
	case errors.Is(err, catalog.ErrCategoryNotFound):
		return "Category not found"
	case errors.Is(err, catalog.ErrProductNotFound):
		return "Product not found"
	case errors.Is(err, order.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, order.ErrPaymentNotFound):
		return "Payment not found"
	case errors.Is(err, cart.ErrItemNotInCart):
		return "Item not in cart"
	case errors.Is(err, cart.ErrProductUnavailable):
		return "Product is out of stock"
	case errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, user.ErrInvalidProfile):
		return err.Error()
	case errors.Is(err, catalog.ErrCategoryNameExists):
		return "Category name already exists"
	case errors.Is(err, catalog.ErrCategoryInUse):
		return "Category still has products"
	case errors.Is(err, order.ErrInvalidStatus):
		return "Invalid order status"
	case errors.Is(err, order.ErrOverrideReasonRequired):
		return "Override requires a reason"
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return "Status transition not allowed"
	case errors.Is(err, order.ErrStatusConflict):
		return "Order was changed by someone else, reload and retry"
	case errors.Is(err, checkout.ErrEmptyCart):
		return "Cart is empty"
	case errors.Is(err, checkout.ErrPaymentNotAccepted):
		return "Order is not awaiting payment"
	case errors.Is(err, checkout.ErrGatewayInitialization):
		return "Failed to initialize payment"
	case errors.Is(err, user.ErrCannotChangeOwnAdmin):
		return "You cannot change your own admin status"
	default:
		return fallback
	}
}

// respondWithServiceError logs err at a level matching its status and sends
// the mapped response.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	event := log.Warn()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", code).Msg(fallback)

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		respondWithJSON(w, code, ValidationErrorResponse{Error: "Validation failed", Details: verr.Fields})
		return
	}
	respondWithError(w, code, clientMessage(err, fallback))
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	param := chi.URLParam(r, name)
	id, err := uuid.FromString(param)
	if err != nil {
		log.Warn().Err(err).Str(name, param).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}
