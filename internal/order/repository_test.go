package order_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/testutil"
)

func setup(t *testing.T) (*pgxpool.Pool, order.Repository) {
	t.Helper()
	pool := testutil.Postgres(t)

	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, display_name) VALUES ('uid-1', 'a@example.com', 'A')`)
	require.NoError(t, err)

	return pool, order.NewRepository(pool)
}

func newPendingOrder(t *testing.T) (*order.Order, *order.Payment) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	items := []order.Item{
		{ProductID: uuid.Must(uuid.NewV4()), Name: "Mug", Price: decimal.RequireFromString("7.25"), Quantity: 2},
	}
	o := &order.Order{
		ID:            uuid.Must(uuid.NewV4()),
		UserID:        "uid-1",
		Items:         items,
		Total:         order.CalculateTotal(items),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		ShippingInfo:  order.ShippingInfo{FirstName: "Ann", Email: "a@example.com", City: "Nairobi"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p := &order.Payment{
		ID:         uuid.Must(uuid.NewV4()),
		Product:    "estore",
		OrderID:    o.ID,
		UserID:     "uid-1",
		Amount:     o.Total,
		Currency:   "KES",
		Status:     "PENDING",
		PaymentFor: "productsOrder",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return o, p
}

func TestPostgresRepository_CreateWithPayment(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o, p := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o, p))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("14.50").Equal(got.Total))
	assert.Equal(t, o.Items[0].Name, got.Items[0].Name)
	assert.Equal(t, "Nairobi", got.ShippingInfo.City)
	assert.Nil(t, got.PaymentReference)

	storedPayment, err := repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", storedPayment.Status, "status is lower-cased on write")
}

func TestPostgresRepository_CreateWithPayment_RollsBackOnPaymentFailure(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o1, p1 := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o1, p1))

	o2, p2 := newPendingOrder(t)
	p2.ID = p1.ID
	p2.OrderID = o2.ID

	err := repo.CreateWithPayment(ctx, o2, p2)
	require.Error(t, err)

	_, err = repo.GetByID(ctx, o2.ID)
	require.ErrorIs(t, err, order.ErrOrderNotFound, "no partial order is left behind")
}

func TestPostgresRepository_RecordPaymentSuccess(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o, p := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o, p))

	paidAt := time.Now().UTC().Truncate(time.Second)
	outcome := order.PaymentOutcome{
		Reference:     p.ID.String(),
		TransactionID: "4099260516",
		Channel:       "card",
		Currency:      "KES",
		CustomerCode:  "CUS_abc",
		PaidAt:        &paidAt,
		Authorization: json.RawMessage(`{"last4":"4081"}`),
		Payload:       json.RawMessage(`{"status":"success"}`),
	}
	require.NoError(t, repo.RecordPaymentSuccess(ctx, o.ID, outcome))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, got.Status)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, p.ID.String(), *got.PaymentReference)
	assert.JSONEq(t, `{"status":"success"}`, string(got.PaymentData))

	storedPayment, err := repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", storedPayment.Status)
	assert.Equal(t, "card", storedPayment.Channel)
	assert.Equal(t, "4099260516", storedPayment.PaymentReference)
	require.NotNil(t, storedPayment.PaidAt)
	assert.True(t, paidAt.Equal(*storedPayment.PaidAt))

	require.ErrorIs(t, repo.RecordPaymentSuccess(ctx, uuid.Must(uuid.NewV4()), outcome), order.ErrOrderNotFound)
}

func TestPostgresRepository_MarkPaymentFailedAndRefund(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o, p := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o, p))
	require.NoError(t, repo.MarkPaymentFailed(ctx, o.ID, p.ID, order.GatewayStatusFailed))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, got.PaymentStatus)

	moved, err := repo.UpdatePaymentStatus(ctx, p.ID, order.GatewayStatusPending, "abandoned")
	require.NoError(t, err)
	assert.False(t, moved, "payment is no longer pending")

	refunded, err := repo.RecordRefund(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, order.GatewayStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)

	got, err = repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, got.PaymentStatus)
}

func TestPostgresRepository_UpdateStatusWritesHistory(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o, p := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o, p))

	change := order.StatusChange{
		OrderID: o.ID, From: order.StatusPending, To: order.StatusCancelled,
		ActorID: "admin-1", Reason: "customer request", Override: true, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.UpdateStatus(ctx, change))

	stale := change
	stale.To = order.StatusProcessing
	require.ErrorIs(t, repo.UpdateStatus(ctx, stale), order.ErrStatusConflict)

	missing := change
	missing.OrderID = uuid.Must(uuid.NewV4())
	require.ErrorIs(t, repo.UpdateStatus(ctx, missing), order.ErrOrderNotFound)

	history, err := repo.ListStatusHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.StatusCancelled, history[0].To)
	assert.True(t, history[0].Override)
	assert.Equal(t, "customer request", history[0].Reason)
}

func TestPostgresRepository_ListPaymentsByTag(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	o, p := newPendingOrder(t)
	require.NoError(t, repo.CreateWithPayment(ctx, o, p))

	other := *p
	other.ID = uuid.Must(uuid.NewV4())
	other.Product = "another-store"
	require.NoError(t, repo.CreatePayment(ctx, &other))

	tagged, err := repo.ListPayments(ctx, order.PaymentFilter{Product: "estore"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, p.ID, tagged[0].ID)

	byOrder, err := repo.ListPayments(ctx, order.PaymentFilter{OrderIDs: []uuid.UUID{o.ID}})
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	revenue, err := repo.Revenue(ctx)
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(revenue))
}
