package http_test

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/estore/internal/archive"
	"github.com/vasiliy-maslov/estore/internal/auth"
	"github.com/vasiliy-maslov/estore/internal/cart"
	"github.com/vasiliy-maslov/estore/internal/catalog"
	"github.com/vasiliy-maslov/estore/internal/checkout"
	handler "github.com/vasiliy-maslov/estore/internal/handler/http"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/reconcile"
	"github.com/vasiliy-maslov/estore/internal/user"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateCategory(ctx context.Context, c *catalog.Category) (*catalog.Category, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Category), args.Error(1)
}

func (m *MockCatalogService) UpdateCategory(ctx context.Context, c *catalog.Category) (*catalog.Category, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Category), args.Error(1)
}

func (m *MockCatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*catalog.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Category), args.Error(1)
}

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Category), args.Error(1)
}

func (m *MockCatalogService) CreateProduct(ctx context.Context, p *catalog.Product) (*catalog.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) UpdateProduct(ctx context.Context, p *catalog.Product) (*catalog.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) ListProducts(ctx context.Context, category string) ([]catalog.Product, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockCatalogService) CountProducts(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) UpdateItem(ctx context.Context, userID string, productID uuid.UUID, quantity int) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID string, productID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) Clear(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetOrder(ctx context.Context, viewer order.Viewer, id uuid.UUID) (*order.WithPayments, error) {
	args := m.Called(ctx, viewer, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.WithPayments), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, viewer order.Viewer, all bool) ([]order.WithPayments, error) {
	args := m.Called(ctx, viewer, all)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.WithPayments), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, update order.StatusUpdate) (*order.Order, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) StatusHistory(ctx context.Context, orderID uuid.UUID) ([]order.StatusChange, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.StatusChange), args.Error(1)
}

func (m *MockOrderService) ListPayments(ctx context.Context) ([]order.Payment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Payment), args.Error(1)
}

func (m *MockOrderService) Summary(ctx context.Context) (*order.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Summary), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) EnsureUser(ctx context.Context, identity user.Identity) (*user.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) ListUsers(ctx context.Context) ([]user.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]user.User), args.Error(1)
}

func (m *MockUserService) SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) (*user.User, error) {
	args := m.Called(ctx, actorID, targetID, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id string, profile user.Profile) (*user.User, error) {
	args := m.Called(ctx, id, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) CountUsers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockCheckouter struct {
	mock.Mock
}

func (m *MockCheckouter) Checkout(ctx context.Context, req checkout.Request) (*checkout.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Response), args.Error(1)
}

func (m *MockCheckouter) RetryPayment(ctx context.Context, userID, email string, orderID uuid.UUID) (*checkout.Response, error) {
	args := m.Called(ctx, userID, email, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Response), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Verify(ctx context.Context, reference, orderID string) (*reconcile.Result, error) {
	args := m.Called(ctx, reference, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.Result), args.Error(1)
}

func (m *MockReconciler) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	return m.Called(ctx, body, signature).Error(0)
}

type testServer struct {
	catalog    *MockCatalogService
	cart       *MockCartService
	orders     *MockOrderService
	users      *MockUserService
	checkout   *MockCheckouter
	reconciler *MockReconciler
	router     http.Handler
}

// Requests authenticate with X-Test-User; X-Test-Admin: true grants admin.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-Test-User")
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		session := auth.Session{
			UserID:  uid,
			Email:   uid + "@example.com",
			IsAdmin: r.Header.Get("X-Test-Admin") == "true",
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

func newTestServer() *testServer {
	s := &testServer{
		catalog:    new(MockCatalogService),
		cart:       new(MockCartService),
		orders:     new(MockOrderService),
		users:      new(MockUserService),
		checkout:   new(MockCheckouter),
		reconciler: new(MockReconciler),
	}

	s.router = handler.NewRouter(handler.Handlers{
		Catalog:  handler.NewCatalogHandler(s.catalog),
		Cart:     handler.NewCartHandler(s.cart),
		Orders:   handler.NewOrderHandler(s.orders, s.checkout, archive.Discard{}),
		Payments: handler.NewPaymentHandler(s.reconciler),
		Users:    handler.NewUserHandler(s.users),
		Admin:    handler.NewAdminHandler(s.catalog, s.users, s.orders),
	}, fakeAuth, nil)

	return s
}
