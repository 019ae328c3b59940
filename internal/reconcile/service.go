package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/archive"
	"github.com/vasiliy-maslov/estore/internal/events"
	"github.com/vasiliy-maslov/estore/internal/gateway"
	"github.com/vasiliy-maslov/estore/internal/order"
)

const (
	MessageVerified = "Payment verified successfully"
	MessageFailed   = "Payment verification failed"

	EventChargeSuccess   = "charge.success"
	EventRefundProcessed = "refund.processed"
)

var (
	ErrMissingParameters  = errors.New("missing reference or orderId")
	ErrReferenceMismatch  = errors.New("payment reference does not belong to this order")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")
)

// Gateway statuses that mean the customer has not finished paying yet.
var inFlightStatuses = map[string]bool{
	"pending":    true,
	"ongoing":    true,
	"processing": true,
	"queued":     true,
}

type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*order.Payment, error)
	RecordPaymentSuccess(ctx context.Context, orderID uuid.UUID, outcome order.PaymentOutcome) error
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, fromStatus, toStatus string) (bool, error)
	RecordRefund(ctx context.Context, paymentID uuid.UUID, refundedAt time.Time) (*order.Payment, error)
}

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Result is the outcome of a verification. Data is the gateway's transaction
// payload.
type Result struct {
	Success     bool
	Message     string
	Data        json.RawMessage
	AlreadyPaid bool
}

type Service struct {
	orders    OrderStore
	gateway   gateway.Gateway
	carts     CartClearer
	deduper   Deduper
	archive   archive.Store
	publisher events.Publisher
	secretKey string
}

func NewService(
	orders OrderStore,
	gw gateway.Gateway,
	carts CartClearer,
	deduper Deduper,
	store archive.Store,
	publisher events.Publisher,
	secretKey string,
) *Service {
	return &Service{
		orders:    orders,
		gateway:   gw,
		carts:     carts,
		deduper:   deduper,
		archive:   store,
		publisher: publisher,
		secretKey: secretKey,
	}
}

// Verify reconciles the gateway's verdict for reference into the order and
// its payment. Verifying an order already paid under the same reference
// returns the stored payload without contacting the gateway.
func (s *Service) Verify(ctx context.Context, reference, orderID string) (*Result, error) {
	reference = strings.TrimSpace(reference)
	orderID = strings.TrimSpace(orderID)
	if reference == "" || orderID == "" {
		return nil, ErrMissingParameters
	}

	oid, err := uuid.FromString(orderID)
	if err != nil {
		return nil, order.ErrOrderNotFound
	}

	o, err := s.orders.GetByID(ctx, oid)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	if o.PaymentStatus == order.PaymentPaid && o.PaymentReference != nil && *o.PaymentReference == reference {
		log.Info().Stringer("order_id", o.ID).Str("reference", reference).Msg("Order already paid, returning stored payment data")
		return &Result{Success: true, Message: MessageVerified, Data: o.PaymentData, AlreadyPaid: true}, nil
	}

	payment, err := s.lookupPayment(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment != nil && payment.OrderID != o.ID {
		log.Warn().
			Stringer("order_id", o.ID).
			Stringer("payment_order_id", payment.OrderID).
			Str("reference", reference).
			Msg("Verification reference belongs to another order")
		return nil, ErrReferenceMismatch
	}

	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Str("reference", reference).Msg("Gateway verification call failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	s.save(ctx, archive.NewRecord(archive.KindVerify, "", reference, o.ID.String(), v.Data))

	if !v.Successful() {
		return s.recordUnsuccessful(ctx, o, payment, reference, v), nil
	}

	tx := v.Transaction
	if tx.Reference != "" && tx.Reference != reference {
		log.Warn().Str("reference", reference).Str("gateway_reference", tx.Reference).Msg("Gateway echoed a different reference")
	}
	charged := gateway.FromMinorUnits(tx.Amount)
	amountMismatch := !charged.Equal(o.Total)
	if amountMismatch {
		log.Warn().
			Stringer("order_id", o.ID).
			Str("order_total", o.Total.String()).
			Str("charged", charged.String()).
			Msg("Charged amount differs from order total")
	}

	outcome := order.PaymentOutcome{
		Reference:     reference,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		Channel:       tx.Channel,
		Currency:      tx.Currency,
		CustomerCode:  tx.CustomerCode(),
		PaidAt:        tx.PaidAtTime(),
		Logs:          tx.Log,
		Authorization: tx.Authorization,
		Customer:      tx.Customer,
		Payload:       v.Data,
	}
	if err := s.orders.RecordPaymentSuccess(ctx, o.ID, outcome); err != nil {
		return nil, fmt.Errorf("failed to record payment for order %s: %w", o.ID, err)
	}

	log.Info().Stringer("order_id", o.ID).Str("reference", reference).Str("channel", tx.Channel).Msg("Payment verified")

	if err := s.carts.Clear(ctx, o.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", o.UserID).Msg("Failed to clear cart after payment")
	}

	s.publish(ctx, events.Event{
		Type:          events.OrderPaid,
		OrderID:       o.ID.String(),
		UserID:        o.UserID,
		Email:         o.ShippingInfo.Email,
		Status:        string(order.StatusProcessing),
		PaymentStatus: string(order.PaymentPaid),
		Reference:     reference,
		Amount:        o.Total,
		Currency:      tx.Currency,
	})

	if amountMismatch {
		s.publish(ctx, events.Event{
			Type:          events.AmountMismatch,
			OrderID:       o.ID.String(),
			UserID:        o.UserID,
			PaymentStatus: string(order.PaymentPaid),
			Reference:     reference,
			Amount:        o.Total,
			Charged:       charged,
			Currency:      tx.Currency,
		})
	}

	return &Result{Success: true, Message: MessageVerified, Data: v.Data}, nil
}

func (s *Service) recordUnsuccessful(ctx context.Context, o *order.Order, payment *order.Payment, reference string, v *gateway.Verification) *Result {
	status := v.GatewayStatus()
	if status == order.GatewayStatusSuccess {
		// Anything but an exact "success" is not a charge.
		status = order.GatewayStatusFailed
	}

	log.Warn().
		Stringer("order_id", o.ID).
		Str("reference", reference).
		Str("gateway_status", status).
		Str("gateway_message", v.Message).
		Msg("Payment not successful")

	if payment != nil && status != payment.Status {
		moved, err := s.orders.UpdatePaymentStatus(ctx, payment.ID, order.GatewayStatusPending, status)
		if err != nil {
			log.Error().Err(err).Stringer("payment_id", payment.ID).Msg("Failed to update payment status")
		} else if !moved {
			log.Info().Stringer("payment_id", payment.ID).Str("status", payment.Status).Msg("Payment no longer pending, status kept")
		}
	}

	if !inFlightStatuses[status] {
		s.publish(ctx, events.Event{
			Type:          events.PaymentFailed,
			OrderID:       o.ID.String(),
			UserID:        o.UserID,
			Email:         o.ShippingInfo.Email,
			PaymentStatus: status,
			Reference:     reference,
			Amount:        o.Total,
		})
	}

	message := v.Message
	if v.Status && v.Transaction != nil && v.Transaction.GatewayResponse != "" {
		message = v.Transaction.GatewayResponse
	}
	if message == "" {
		message = "Payment was not successful"
	}

	return &Result{Success: false, Message: message, Data: v.Data}
}

func (s *Service) lookupPayment(ctx context.Context, reference string) (*order.Payment, error) {
	pid, err := uuid.FromString(reference)
	if err != nil {
		return nil, nil
	}

	p, err := s.orders.GetPayment(ctx, pid)
	if err != nil {
		if errors.Is(err, order.ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", reference, err)
	}
	return p, nil
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID                   int64           `json:"id"`
		Reference            string          `json:"reference"`
		TransactionReference string          `json:"transaction_reference"`
		Status               string          `json:"status"`
		Metadata             json.RawMessage `json:"metadata"`
	} `json:"data"`
}

func (w *webhookPayload) dedupeKey() string {
	id := w.Data.Reference
	if w.Data.ID != 0 {
		id = strconv.FormatInt(w.Data.ID, 10)
	}
	return "paystack:" + w.Event + ":" + id
}

// HandleWebhook authenticates and applies a gateway event. Repeated
// deliveries of the same event are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !gateway.VerifySignature(s.secretKey, body, signature) {
		return ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Event == "" {
		return ErrMalformedWebhook
	}

	key := payload.dedupeKey()
	first, err := s.deduper.FirstSeen(ctx, key)
	if err != nil {
		return err
	}
	if !first {
		log.Info().Str("event", payload.Event).Str("key", key).Msg("Duplicate webhook ignored")
		return nil
	}

	reference := payload.Data.Reference
	if payload.Event == EventRefundProcessed && payload.Data.TransactionReference != "" {
		reference = payload.Data.TransactionReference
	}

	s.save(ctx, archive.NewRecord(archive.KindWebhook, payload.Event, reference, "", body))

	switch payload.Event {
	case EventChargeSuccess:
		err = s.handleChargeSuccess(ctx, reference, payload.Data.Metadata)
	case EventRefundProcessed:
		err = s.handleRefund(ctx, reference)
	default:
		log.Info().Str("event", payload.Event).Str("reference", reference).Msg("Webhook event acknowledged")
	}

	if err != nil {
		// Let the gateway redeliver.
		if forgetErr := s.deduper.Forget(ctx, key); forgetErr != nil {
			log.Error().Err(forgetErr).Str("key", key).Msg("Failed to release webhook key")
		}
		return err
	}

	return nil
}

func (s *Service) handleChargeSuccess(ctx context.Context, reference string, metadata json.RawMessage) error {
	orderID := (&gateway.Transaction{Metadata: metadata}).MetadataString("order_id")
	if orderID == "" {
		payment, err := s.lookupPayment(ctx, reference)
		if err != nil {
			return err
		}
		if payment == nil {
			log.Warn().Str("reference", reference).Msg("charge.success for unknown reference")
			return nil
		}
		orderID = payment.OrderID.String()
	}

	result, err := s.Verify(ctx, reference, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) || errors.Is(err, ErrReferenceMismatch) {
			log.Warn().Err(err).Str("reference", reference).Str("order_id", orderID).Msg("charge.success could not be matched")
			return nil
		}
		return err
	}

	if !result.Success {
		log.Warn().Str("reference", reference).Str("message", result.Message).Msg("charge.success did not verify")
	}
	return nil
}

func (s *Service) handleRefund(ctx context.Context, reference string) error {
	pid, err := uuid.FromString(reference)
	if err != nil {
		log.Warn().Str("reference", reference).Msg("Refund for a reference we did not issue")
		return nil
	}

	p, err := s.orders.RecordRefund(ctx, pid, time.Now().UTC())
	if err != nil {
		if errors.Is(err, order.ErrPaymentNotFound) {
			log.Warn().Str("reference", reference).Msg("Refund for unknown payment")
			return nil
		}
		return fmt.Errorf("failed to record refund for %s: %w", reference, err)
	}

	log.Info().Stringer("payment_id", p.ID).Stringer("order_id", p.OrderID).Msg("Payment refunded")

	var email string
	if o, err := s.orders.GetByID(ctx, p.OrderID); err == nil {
		email = o.ShippingInfo.Email
	}

	s.publish(ctx, events.Event{
		Type:          events.PaymentRefunded,
		OrderID:       p.OrderID.String(),
		UserID:        p.UserID,
		Email:         email,
		PaymentStatus: string(order.PaymentRefunded),
		Reference:     reference,
		Amount:        p.Amount,
		Currency:      p.Currency,
	})
	return nil
}

func (s *Service) save(ctx context.Context, r archive.Record) {
	if err := s.archive.Save(ctx, r); err != nil {
		log.Error().Err(err).Str("reference", r.Reference).Str("kind", r.Kind).Msg("Failed to archive gateway payload")
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Str("order_id", e.OrderID).Msg("Failed to publish event")
	}
}
