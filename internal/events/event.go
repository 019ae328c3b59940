package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	OrderCreated       Type = "order.created"
	OrderPaid          Type = "order.paid"
	OrderStatusChanged Type = "order.status_changed"
	PaymentFailed      Type = "payment.failed"
	PaymentRefunded    Type = "payment.refunded"
	// AmountMismatch flags a confirmed charge whose amount is not the order
	// total. It goes to operations, not the customer.
	AmountMismatch     Type = "payment.amount_mismatch"
)

type Event struct {
	Type           Type            `json:"type"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id,omitempty"`
	Email          string          `json:"email,omitempty"`
	Status         string          `json:"status,omitempty"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Charged        decimal.Decimal `json:"charged"`
	Currency       string          `json:"currency,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }
