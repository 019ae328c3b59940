package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/estore/internal/events"
)

// allowedTransitions is the fulfillment flow accepted without an override.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrInvalidStatus           = errors.New("invalid order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrOverrideReasonRequired  = errors.New("override requires a reason")
)

const recentOrdersLimit = 5

// Viewer is who is looking at orders. Non-admins only see their own.
type Viewer struct {
	UserID  string
	IsAdmin bool
}

type StatusUpdate struct {
	OrderID  uuid.UUID
	Status   Status
	Override bool
	Reason   string
	ActorID  string
}

type Summary struct {
	TotalOrders  int             `json:"total_orders"`
	Revenue      decimal.Decimal `json:"revenue"`
	RecentOrders []Order         `json:"recent_orders"`
}

type Service interface {
	GetOrder(ctx context.Context, viewer Viewer, id uuid.UUID) (*WithPayments, error)
	ListOrders(ctx context.Context, viewer Viewer, all bool) ([]WithPayments, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (*Order, error)
	StatusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	Summary(ctx context.Context) (*Summary, error)
}

type service struct {
	repo      Repository
	publisher events.Publisher
	storeTag  string
}

func NewService(repo Repository, publisher events.Publisher, storeTag string) Service {
	return &service{repo: repo, publisher: publisher, storeTag: storeTag}
}

func (s *service) GetOrder(ctx context.Context, viewer Viewer, id uuid.UUID) (*WithPayments, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}

	// Other users' orders look the same as missing ones.
	if !viewer.IsAdmin && o.UserID != viewer.UserID {
		return nil, ErrOrderNotFound
	}

	payments, err := s.repo.ListPayments(ctx, PaymentFilter{Product: s.storeTag, OrderIDs: []uuid.UUID{o.ID}})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for order %s: %w", id, err)
	}

	grouped := GroupPaymentsByOrder([]Order{*o}, payments)
	return &grouped[0], nil
}

// ListOrders returns the viewer's orders, or every order when all is set and
// the viewer is an admin, each joined with its store payments.
func (s *service) ListOrders(ctx context.Context, viewer Viewer, all bool) ([]WithPayments, error) {
	userID := viewer.UserID
	if all && viewer.IsAdmin {
		userID = ""
	}

	orders, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(orders) == 0 {
		return []WithPayments{}, nil
	}

	filter := PaymentFilter{Product: s.storeTag}
	if userID != "" {
		filter.OrderIDs = make([]uuid.UUID, 0, len(orders))
		for _, o := range orders {
			filter.OrderIDs = append(filter.OrderIDs, o.ID)
		}
	}

	payments, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return GroupPaymentsByOrder(orders, payments), nil
}

// UpdateStatus changes the fulfillment status. Without Override only
// allowedTransitions are accepted; with it any valid status is, provided a
// reason is given. Setting the current status is a no-op.
func (s *service) UpdateStatus(ctx context.Context, update StatusUpdate) (*Order, error) {
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}
	update.Reason = strings.TrimSpace(update.Reason)
	if update.Override && update.Reason == "" {
		return nil, ErrOverrideReasonRequired
	}

	o, err := s.repo.GetByID(ctx, update.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", update.OrderID, err)
	}

	if o.Status == update.Status {
		log.Info().Stringer("order_id", o.ID).Str("status", string(o.Status)).Msg("Order status unchanged")
		return o, nil
	}

	if !update.Override && !allowedTransitions[o.Status][update.Status] {
		log.Warn().
			Stringer("order_id", o.ID).
			Str("from_status", string(o.Status)).
			Str("to_status", string(update.Status)).
			Msg("Rejected order status transition")
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, o.Status, update.Status)
	}

	change := StatusChange{
		OrderID:   o.ID,
		From:      o.Status,
		To:        update.Status,
		ActorID:   update.ActorID,
		Reason:    update.Reason,
		Override:  update.Override,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update order %s status: %w", o.ID, err)
	}

	logEvent := log.Info()
	if change.Override {
		logEvent = log.Warn().Bool("override", true).Str("reason", change.Reason)
	}
	logEvent.
		Stringer("order_id", o.ID).
		Str("actor_id", change.ActorID).
		Str("from_status", string(change.From)).
		Str("to_status", string(change.To)).
		Msg("Order status updated")

	o.Status = change.To
	o.UpdatedAt = change.CreatedAt

	if err := s.publisher.Publish(ctx, events.Event{
		Type:           events.OrderStatusChanged,
		OrderID:        o.ID.String(),
		UserID:         o.UserID,
		Email:          o.ShippingInfo.Email,
		Status:         string(change.To),
		PreviousStatus: string(change.From),
		PaymentStatus:  string(o.PaymentStatus),
		Amount:         o.Total,
		Reason:         change.Reason,
		OccurredAt:     change.CreatedAt,
	}); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("Failed to publish status change")
	}

	return o, nil
}

func (s *service) StatusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error) {
	if _, err := s.repo.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	history, err := s.repo.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history for order %s: %w", orderID, err)
	}
	return history, nil
}

func (s *service) ListPayments(ctx context.Context) ([]Payment, error) {
	payments, err := s.repo.ListPayments(ctx, PaymentFilter{Product: s.storeTag})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	revenue, err := s.repo.Revenue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute revenue: %w", err)
	}

	recent, err := s.repo.ListRecent(ctx, recentOrdersLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}

	return &Summary{TotalOrders: count, Revenue: revenue, RecentOrders: recent}, nil
}
