package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/cart"
	"github.com/vasiliy-maslov/estore/internal/events"
	"github.com/vasiliy-maslov/estore/internal/gateway"
	"github.com/vasiliy-maslov/estore/internal/order"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidItem           = errors.New("invalid cart item")
	ErrGatewayInitialization = errors.New("failed to initialize payment")
	ErrPaymentNotAccepted    = errors.New("order is not awaiting payment")
)

// ValidationError lists the shipping fields that were left blank.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

type OrderStore interface {
	CreateWithPayment(ctx context.Context, o *order.Order, p *order.Payment) error
	CreatePayment(ctx context.Context, p *order.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID, paymentID uuid.UUID, gatewayStatus string) error
}

type CartReader interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
}

type Options struct {
	Application string
	PaymentFor  string
	Currency    string
	PublicKey   string
	CallbackURL string
}

type Request struct {
	UserID   string
	Email    string
	Items    []order.Item
	Shipping order.ShippingInfo
}

// Response carries what the client needs to open the gateway's payment page.
type Response struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentID        uuid.UUID `json:"payment_id"`
	Reference        string    `json:"reference"`
	AuthorizationURL string    `json:"authorization_url"`
	AccessCode       string    `json:"access_code"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	PublicKey        string    `json:"public_key"`
}

type Service struct {
	orders    OrderStore
	carts     CartReader
	gateway   gateway.Gateway
	publisher events.Publisher
	opts      Options
}

func NewService(orders OrderStore, carts CartReader, gw gateway.Gateway, publisher events.Publisher, opts Options) *Service {
	return &Service{orders: orders, carts: carts, gateway: gw, publisher: publisher, opts: opts}
}

// Checkout records a pending order with its first payment and opens a
// gateway transaction for it. When the request carries no items the user's
// stored cart is used.
func (s *Service) Checkout(ctx context.Context, req Request) (*Response, error) {
	if err := validateShipping(req.Shipping); err != nil {
		return nil, err
	}

	items := req.Items
	if len(items) == 0 {
		c, err := s.carts.Get(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		items = fromCart(c)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidItem, i, item.Quantity)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item %d has a negative price", ErrInvalidItem, i)
		}
		if !order.ValidAmount(item.Price) {
			return nil, fmt.Errorf("%w: item %d price %s is not a whole number of cents", ErrInvalidItem, i, item.Price)
		}
	}
	total := order.CalculateTotal(items)
	if !order.ValidAmount(total) {
		return nil, fmt.Errorf("%w: order total %s is too large", ErrInvalidItem, total)
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}

	now := time.Now().UTC()
	o := &order.Order{
		ID:            orderID,
		UserID:        req.UserID,
		Items:         items,
		Total:         total,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		ShippingInfo:  trimShipping(req.Shipping),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	p, err := s.newPayment(o, now)
	if err != nil {
		return nil, err
	}

	if err := s.orders.CreateWithPayment(ctx, o, p); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("payment_id", p.ID).
		Str("user_id", o.UserID).
		Str("total", o.Total.String()).
		Msg("Order created")

	resp, err := s.initialize(ctx, o, p, contactEmail(req.Email, o.ShippingInfo.Email))
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:          events.OrderCreated,
		OrderID:       o.ID.String(),
		UserID:        o.UserID,
		Email:         o.ShippingInfo.Email,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Reference:     resp.Reference,
		Amount:        o.Total,
		Currency:      p.Currency,
	})

	return resp, nil
}

// RetryPayment opens a new gateway transaction for an order whose earlier
// attempt did not go through.
func (s *Service) RetryPayment(ctx context.Context, userID, email string, orderID uuid.UUID) (*Response, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}

	if o.Status == order.StatusCancelled ||
		(o.PaymentStatus != order.PaymentPending && o.PaymentStatus != order.PaymentFailed) {
		return nil, ErrPaymentNotAccepted
	}

	p, err := s.newPayment(o, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.orders.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("payment_id", p.ID).Msg("Payment retry started")

	return s.initialize(ctx, o, p, contactEmail(email, o.ShippingInfo.Email))
}

func (s *Service) newPayment(o *order.Order, now time.Time) (*order.Payment, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment id: %w", err)
	}

	return &order.Payment{
		ID:         id,
		Product:    s.opts.Application,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Amount:     o.Total,
		Currency:   s.opts.Currency,
		Status:     order.GatewayStatusPending,
		PaymentFor: s.opts.PaymentFor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// initialize opens the gateway transaction. If the gateway refuses, the
// payment and the order are marked failed so nothing is left pending.
func (s *Service) initialize(ctx context.Context, o *order.Order, p *order.Payment, email string) (*Response, error) {
	reference := p.ID.String()
	amount := gateway.ToMinorUnits(o.Total)

	result, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       email,
		Amount:      amount,
		Currency:    p.Currency,
		Reference:   reference,
		CallbackURL: s.opts.CallbackURL,
		Metadata: map[string]any{
			"application": s.opts.Application,
			"order_id":    o.ID.String(),
			"user_id":     o.UserID,
			"items":       itemSummary(o.Items),
		},
	})
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Str("reference", reference).Msg("Gateway initialization failed")

		if markErr := s.orders.MarkPaymentFailed(ctx, o.ID, p.ID, order.GatewayStatusFailed); markErr != nil {
			log.Error().Err(markErr).Stringer("order_id", o.ID).Stringer("payment_id", p.ID).Msg("Failed to mark payment failed")
		}

		return nil, fmt.Errorf("%w: %v", ErrGatewayInitialization, err)
	}

	if result.Reference != "" && result.Reference != reference {
		log.Warn().Str("reference", reference).Str("gateway_reference", result.Reference).Msg("Gateway returned a different reference")
	}

	return &Response{
		OrderID:          o.ID,
		PaymentID:        p.ID,
		Reference:        reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Amount:           amount,
		Currency:         p.Currency,
		PublicKey:        s.opts.PublicKey,
	}, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Str("order_id", e.OrderID).Msg("Failed to publish event")
	}
}

func validateShipping(info order.ShippingInfo) error {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", info.FirstName},
		{"last_name", info.LastName},
		{"email", info.Email},
		{"phone", info.Phone},
		{"address", info.Address},
		{"city", info.City},
		{"state", info.State},
	}

	fields := map[string]string{}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = "This field is required"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func trimShipping(info order.ShippingInfo) order.ShippingInfo {
	return order.ShippingInfo{
		FirstName: strings.TrimSpace(info.FirstName),
		LastName:  strings.TrimSpace(info.LastName),
		Email:     strings.TrimSpace(info.Email),
		Phone:     strings.TrimSpace(info.Phone),
		Address:   strings.TrimSpace(info.Address),
		City:      strings.TrimSpace(info.City),
		State:     strings.TrimSpace(info.State),
		ZipCode:   strings.TrimSpace(info.ZipCode),
	}
}

func fromCart(c *cart.Cart) []order.Item {
	if c == nil {
		return nil
	}
	items := make([]order.Item, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Category:  item.Category,
		})
	}
	return items
}

func itemSummary(items []order.Item) []map[string]any {
	summary := make([]map[string]any, 0, len(items))
	for _, item := range items {
		summary = append(summary, map[string]any{
			"product_id": item.ProductID.String(),
			"name":       item.Name,
			"quantity":   item.Quantity,
		})
	}
	return summary
}

func contactEmail(sessionEmail, shippingEmail string) string {
	if shippingEmail != "" {
		return shippingEmail
	}
	return sessionEmail
}
