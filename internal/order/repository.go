package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrStatusConflict means the order changed between read and write.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type PaymentFilter struct {
	Product  string
	OrderIDs []uuid.UUID
}

type Repository interface {
	CreateWithPayment(ctx context.Context, o *Order, p *Payment) error
	CreatePayment(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, userID string) ([]Order, error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	Count(ctx context.Context) (int, error)
	Revenue(ctx context.Context) (decimal.Decimal, error)

	UpdateStatus(ctx context.Context, change StatusChange) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)

	RecordPaymentSuccess(ctx context.Context, orderID uuid.UUID, outcome PaymentOutcome) error
	MarkPaymentFailed(ctx context.Context, orderID, paymentID uuid.UUID, gatewayStatus string) error
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, fromStatus, toStatus string) (bool, error)
	RecordRefund(ctx context.Context, paymentID uuid.UUID, refundedAt time.Time) (*Payment, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// withTx runs fn in a transaction, committing when fn succeeds and rolling
// back on error or panic.
func (r *postgresRepository) withTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Str("op", op).Msg("Panic recovered in transaction, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("op", op).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Str("op", op).Msg("Transaction failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("op", op).Msg("Failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Str("op", op).Msg("Failed to commit transaction")
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}

const orderColumns = `
	id, user_id, items, total, status, payment_status, payment_reference,
	payment_data, shipping_info, created_at, updated_at
`

const paymentColumns = `
	id, product, order_id, user_id, amount, currency, channel, status, customer,
	reference, payment_reference, payment_for, paid_at, refunded_at, logs,
	auth_data, customer_data, created_at, updated_at
`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o           Order
		items       []byte
		shipping    []byte
		paymentData []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &o.Total, &o.Status, &o.PaymentStatus, &o.PaymentReference,
		&paymentData, &shipping, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("repository: corrupt items for order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingInfo); err != nil {
		return nil, fmt.Errorf("repository: corrupt shipping info for order %s: %w", o.ID, err)
	}
	if len(paymentData) > 0 {
		o.PaymentData = json.RawMessage(paymentData)
	}

	return &o, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p                  Payment
		logs, authz, owner []byte
	)
	err := row.Scan(&p.ID, &p.Product, &p.OrderID, &p.UserID, &p.Amount, &p.Currency, &p.Channel, &p.Status,
		&p.Customer, &p.Reference, &p.PaymentReference, &p.PaymentFor, &p.PaidAt, &p.RefundedAt,
		&logs, &authz, &owner, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Logs = rawOrNil(logs)
	p.Authorization = rawOrNil(authz)
	p.User = rawOrNil(owner)
	return &p, nil
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertPayment(ctx context.Context, db execer, p *Payment) error {
	query := `
		INSERT INTO payments (id, product, order_id, user_id, amount, currency, channel, status, customer,
			reference, payment_reference, payment_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := db.Exec(ctx, query, p.ID, p.Product, p.OrderID, p.UserID, p.Amount, p.Currency, p.Channel,
		strings.ToLower(p.Status), p.Customer, p.Reference, p.PaymentReference, p.PaymentFor, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment %s: %w", p.ID, err)
	}
	return nil
}

// CreateWithPayment stores an order and its first payment atomically.
func (r *postgresRepository) CreateWithPayment(ctx context.Context, o *Order, p *Payment) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order items: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingInfo)
	if err != nil {
		return fmt.Errorf("repository: failed to encode shipping info: %w", err)
	}

	return r.withTx(ctx, "create_order", func(tx pgx.Tx) error {
		query := `
			INSERT INTO orders (id, user_id, items, total, status, payment_status, shipping_info, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.Exec(ctx, query, o.ID, o.UserID, items, o.Total, string(o.Status), string(o.PaymentStatus),
			shipping, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order %s: %w", o.ID, err)
		}

		return insertPayment(ctx, tx, p)
	})
}

func (r *postgresRepository) CreatePayment(ctx context.Context, p *Payment) error {
	return insertPayment(ctx, r.db, p)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	return o, nil
}

// List returns orders newest first, restricted to userID unless it is empty.
func (r *postgresRepository) List(ctx context.Context, userID string) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text = '' OR user_id = $1::text)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *postgresRepository) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query recent orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	return orders, nil
}

func (r *postgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) Revenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM orders`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("repository: failed to sum order totals: %w", err)
	}
	return total, nil
}

// UpdateStatus applies change only if the order is still in change.From and
// writes the history row in the same transaction.
func (r *postgresRepository) UpdateStatus(ctx context.Context, change StatusChange) error {
	return r.withTx(ctx, "update_order_status", func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			string(change.To), change.CreatedAt, change.OrderID, string(change.From))
		if err != nil {
			return fmt.Errorf("repository: failed to update order status %s: %w", change.OrderID, err)
		}

		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, change.OrderID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check order %s: %w", change.OrderID, err)
			}
			if !exists {
				return ErrOrderNotFound
			}
			return ErrStatusConflict
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, reason, override, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, change.OrderID, string(change.From), string(change.To), change.ActorID, change.Reason, change.Override, change.CreatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to record status history for order %s: %w", change.OrderID, err)
		}

		return nil
	})
}

func (r *postgresRepository) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error) {
	query := `
		SELECT order_id, from_status, to_status, actor_id, reason, override, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query status history for order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := make([]StatusChange, 0)
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.OrderID, &c.From, &c.To, &c.ActorID, &c.Reason, &c.Override, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status history: %w", err)
		}
		history = append(history, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating status history: %w", err)
	}

	return history, nil
}

// RecordPaymentSuccess marks the order paid and fills the gateway fields of
// the payment whose id equals outcome.Reference, if there is one. A pending
// order moves to processing.
func (r *postgresRepository) RecordPaymentSuccess(ctx context.Context, orderID uuid.UUID, outcome PaymentOutcome) error {
	now := time.Now().UTC()

	return r.withTx(ctx, "record_payment_success", func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders
			SET payment_status = $1,
				status = CASE WHEN status = $2 THEN $3 ELSE status END,
				payment_reference = $4,
				payment_data = $5,
				updated_at = $6
			WHERE id = $7
		`, string(PaymentPaid), string(StatusPending), string(StatusProcessing), outcome.Reference,
			[]byte(outcome.Payload), now, orderID)
		if err != nil {
			return fmt.Errorf("repository: failed to mark order %s paid: %w", orderID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		paymentID, err := uuid.FromString(outcome.Reference)
		if err != nil {
			// Not one of our payment ids; nothing else to update.
			return nil
		}

		paidAt := outcome.PaidAt
		if paidAt == nil {
			paidAt = &now
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = $1, channel = $2, currency = COALESCE(NULLIF($3, ''), currency), customer = $4,
				reference = $5, payment_reference = $6, paid_at = $7, logs = $8, auth_data = $9,
				customer_data = $10, updated_at = $11
			WHERE id = $12 AND order_id = $13
		`, GatewayStatusSuccess, outcome.Channel, outcome.Currency, outcome.CustomerCode,
			outcome.Reference, outcome.TransactionID, *paidAt, []byte(outcome.Logs), []byte(outcome.Authorization),
			[]byte(outcome.Customer), now, paymentID, orderID)
		if err != nil {
			return fmt.Errorf("repository: failed to record payment %s: %w", paymentID, err)
		}

		return nil
	})
}

// MarkPaymentFailed is the compensation for a checkout whose gateway
// initialization failed.
func (r *postgresRepository) MarkPaymentFailed(ctx context.Context, orderID, paymentID uuid.UUID, gatewayStatus string) error {
	now := time.Now().UTC()

	return r.withTx(ctx, "mark_payment_failed", func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND order_id = $4`,
			strings.ToLower(gatewayStatus), now, paymentID, orderID)
		if err != nil {
			return fmt.Errorf("repository: failed to fail payment %s: %w", paymentID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrPaymentNotFound
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3 AND payment_status = $4`,
			string(PaymentFailed), now, orderID, string(PaymentPending))
		if err != nil {
			return fmt.Errorf("repository: failed to fail order %s: %w", orderID, err)
		}

		return nil
	})
}

// UpdatePaymentStatus moves a payment from fromStatus to toStatus and reports
// whether it was in fromStatus.
func (r *postgresRepository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, fromStatus, toStatus string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		strings.ToLower(toStatus), time.Now().UTC(), paymentID, strings.ToLower(fromStatus))
	if err != nil {
		return false, fmt.Errorf("repository: failed to update payment %s status: %w", paymentID, err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *postgresRepository) RecordRefund(ctx context.Context, paymentID uuid.UUID, refundedAt time.Time) (*Payment, error) {
	var refunded *Payment

	err := r.withTx(ctx, "record_refund", func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE payments
			SET status = $1, refunded_at = $2, updated_at = $2
			WHERE id = $3
			RETURNING `+paymentColumns,
			GatewayStatusRefunded, refundedAt, paymentID)

		p, err := scanPayment(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("repository: failed to refund payment %s: %w", paymentID, err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`,
			string(PaymentRefunded), refundedAt, p.OrderID)
		if err != nil {
			return fmt.Errorf("repository: failed to mark order %s refunded: %w", p.OrderID, err)
		}

		refunded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return refunded, nil
}

func (r *postgresRepository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment %s: %w", id, err)
	}

	return p, nil
}

// ListPayments returns payments newest first. Empty filter fields do not
// restrict the result.
func (r *postgresRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE ($1::text = '' OR product = $1::text)
			AND (cardinality($2::uuid[]) = 0 OR order_id = ANY($2::uuid[]))
		ORDER BY created_at DESC
	`

	orderIDs := filter.OrderIDs
	if orderIDs == nil {
		orderIDs = []uuid.UUID{}
	}

	rows, err := r.db.Query(ctx, query, filter.Product, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating payments: %w", err)
	}

	return payments, nil
}
