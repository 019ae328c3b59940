package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// OperationsRecipient receives notifications meant for store staff.
const OperationsRecipient = "operations"

type Notification struct {
	To      string
	Subject string
	Body    string
}

// Render turns an event into the customer notification it should produce.
// ok is false for events nobody is notified about.
func Render(e Event) (n Notification, ok bool) {
	n.To = e.Email
	switch e.Type {
	case OrderCreated:
		n.Subject = "We received your order"
		n.Body = fmt.Sprintf("Order %s for %s %s is awaiting payment.", e.OrderID, e.Amount.StringFixed(2), e.Currency)
	case OrderPaid:
		n.Subject = "Payment received"
		n.Body = fmt.Sprintf("Payment %s for order %s was successful. We are preparing your items.", e.Reference, e.OrderID)
	case OrderStatusChanged:
		n.Subject = "Your order was updated"
		n.Body = fmt.Sprintf("Order %s is now %s.", e.OrderID, e.Status)
	case PaymentFailed:
		n.Subject = "Payment was not completed"
		n.Body = fmt.Sprintf("Payment %s for order %s ended with status %s. You can retry from your orders page.", e.Reference, e.OrderID, e.PaymentStatus)
	case PaymentRefunded:
		n.Subject = "Refund processed"
		n.Body = fmt.Sprintf("Payment %s for order %s has been refunded.", e.Reference, e.OrderID)
	case AmountMismatch:
		n.To = OperationsRecipient
		n.Subject = "Payment amount needs review"
		n.Body = fmt.Sprintf("Payment %s for order %s charged %s %s but the order total is %s.",
			e.Reference, e.OrderID, e.Charged.StringFixed(2), e.Currency, e.Amount.StringFixed(2))
	default:
		return Notification{}, false
	}
	return n, true
}

type Notifier struct {
	reader MessageReader
}

func NewNotifier(reader MessageReader) *Notifier {
	return &Notifier{reader: reader}
}

// Run consumes events until ctx is cancelled. Malformed messages are logged
// and committed so they do not block the partition.
func (n *Notifier) Run(ctx context.Context) error {
	defer func() {
		if err := n.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event reader")
		}
	}()

	log.Info().Msg("Notifier is waiting for order events")

	for {
		msg, err := n.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				log.Info().Msg("Stopping notifier")
				return nil
			}
			return fmt.Errorf("failed to fetch event: %w", err)
		}

		n.handle(msg)

		if err := n.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit event offset: %w", err)
		}
	}
}

func (n *Notifier) handle(msg kafka.Message) {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Skipping malformed event")
		return
	}

	notification, ok := Render(e)
	if !ok {
		log.Debug().Str("event_type", string(e.Type)).Msg("No notification for event")
		return
	}

	if notification.To == "" {
		log.Warn().Str("event_type", string(e.Type)).Str("order_id", e.OrderID).Msg("Event has no recipient")
		return
	}

	log.Info().
		Str("to", notification.To).
		Str("subject", notification.Subject).
		Str("order_id", e.OrderID).
		Msg(notification.Body)
}
