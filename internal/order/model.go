package order

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment status of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Gateway vocabulary for payment records.
const (
	GatewayStatusPending  = "pending"
	GatewayStatusSuccess  = "success"
	GatewayStatusFailed   = "failed"
	GatewayStatusRefunded = "refunded"
)

// Item is a frozen snapshot of a product at checkout time.
type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	Category  string          `json:"category"`
}

type ShippingInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code,omitempty"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	UserID           string          `json:"user_id"`
	Items            []Item          `json:"items"`
	Total            decimal.Decimal `json:"total"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	PaymentData      json.RawMessage `json:"payment_data,omitempty"`
	ShippingInfo     ShippingInfo    `json:"shipping_info"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type Payment struct {
	ID               uuid.UUID       `json:"id"`
	Product          string          `json:"product"`
	OrderID          uuid.UUID       `json:"order_id"`
	UserID           string          `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Channel          string          `json:"channel"`
	Status           string          `json:"status"`
	Customer         string          `json:"customer"`
	Reference        string          `json:"reference"`
	PaymentReference string          `json:"payment_reference"`
	PaymentFor       string          `json:"payment_for"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	Logs             json.RawMessage `json:"logs,omitempty"`
	Authorization    json.RawMessage `json:"authorization,omitempty"`
	User             json.RawMessage `json:"user,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentOutcome is what the gateway reported for a successful charge.
type PaymentOutcome struct {
	Reference     string
	TransactionID string
	Channel       string
	Currency      string
	CustomerCode  string
	PaidAt        *time.Time
	Logs          json.RawMessage
	Authorization json.RawMessage
	Customer      json.RawMessage
	Payload       json.RawMessage
}

type StatusChange struct {
	OrderID   uuid.UUID `json:"order_id"`
	From      Status    `json:"from_status"`
	To        Status    `json:"to_status"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	Override  bool      `json:"override"`
	CreatedAt time.Time `json:"created_at"`
}

type WithPayments struct {
	Order
	Payments []Payment `json:"payments"`
}

// MaxAmount is the first value that no longer fits the NUMERIC(12,2) money
// columns.
var MaxAmount = decimal.New(1, 10)

// ValidAmount reports whether a can be stored without rounding: at most two
// decimal places and below MaxAmount.
func ValidAmount(a decimal.Decimal) bool {
	return a.Equal(a.Truncate(2)) && a.LessThan(MaxAmount)
}

// CalculateTotal sums price * quantity over items with exact decimal
// arithmetic.
func CalculateTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// GroupPaymentsByOrder attaches payments to their orders, keeping the order
// of orders. Orders without payments get an empty slice.
func GroupPaymentsByOrder(orders []Order, payments []Payment) []WithPayments {
	byOrder := make(map[uuid.UUID][]Payment, len(orders))
	for _, p := range payments {
		byOrder[p.OrderID] = append(byOrder[p.OrderID], p)
	}

	result := make([]WithPayments, 0, len(orders))
	for _, o := range orders {
		ps := byOrder[o.ID]
		if ps == nil {
			ps = []Payment{}
		}
		result = append(result, WithPayments{Order: o, Payments: ps})
	}
	return result
}
