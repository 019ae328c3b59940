package http_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/catalog"
)

func TestCatalogHandler_ListProductsPassesCategory(t *testing.T) {
	s := newTestServer()
	products := []catalog.Product{{ID: uuid.Must(uuid.NewV4()), Name: "Kettle", Category: "Kitchen", Price: decimal.NewFromInt(1500)}}
	s.catalog.On("ListProducts", mock.Anything, "Kitchen").Return(products, nil).Once()

	rr := s.do(t, http.MethodGet, "/products?category=Kitchen", nil, "", false)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []catalog.Product
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, products[0].ID, got[0].ID)
	assert.True(t, products[0].Price.Equal(got[0].Price))
}

func TestCatalogHandler_GetProductInvalidID(t *testing.T) {
	s := newTestServer()

	rr := s.do(t, http.MethodGet, "/products/not-a-uuid", nil, "", false)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	s.catalog.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
}

func TestCatalogHandler_CreateProduct(t *testing.T) {
	s := newTestServer()
	categoryID := uuid.Must(uuid.NewV4())

	var received *catalog.Product
	s.catalog.On("CreateProduct", mock.Anything, mock.AnythingOfType("*catalog.Product")).
		Run(func(args mock.Arguments) { received = args.Get(1).(*catalog.Product) }).
		Return(&catalog.Product{ID: uuid.Must(uuid.NewV4()), Name: "Kettle"}, nil).Once()

	body := map[string]interface{}{
		"name":           "Kettle",
		"price":          "1500.00",
		"category_id":    categoryID.String(),
		"stock_quantity": 3,
	}
	rr := s.do(t, http.MethodPost, "/admin/products", body, "admin-1", true)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	want := &catalog.Product{
		Name:          "Kettle",
		Price:         decimal.RequireFromString("1500.00"),
		CategoryID:    categoryID,
		InStock:       true,
		StockQuantity: 3,
	}
	if diff := cmp.Diff(want, received, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("CreateProduct mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogHandler_CreateProductErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]interface{}
		err      error
		wantCode int
	}{
		{
			name:     "missing_name",
			body:     map[string]interface{}{"price": "10", "category_id": uuid.Must(uuid.NewV4()).String()},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad_category_id",
			body:     map[string]interface{}{"name": "Mug", "price": "10", "category_id": "kitchen"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non_positive_price",
			body:     map[string]interface{}{"name": "Mug", "price": "0", "category_id": uuid.Must(uuid.NewV4()).String()},
			err:      catalog.ErrInvalidInput,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown_category",
			body:     map[string]interface{}{"name": "Mug", "price": "10", "category_id": uuid.Must(uuid.NewV4()).String()},
			err:      catalog.ErrCategoryNotFound,
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			if tt.err != nil {
				s.catalog.On("CreateProduct", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			}

			rr := s.do(t, http.MethodPost, "/admin/products", tt.body, "admin-1", true)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.err == nil {
				s.catalog.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCatalogHandler_DeleteCategoryInUse(t *testing.T) {
	s := newTestServer()
	id := uuid.Must(uuid.NewV4())
	s.catalog.On("DeleteCategory", mock.Anything, id).Return(catalog.ErrCategoryInUse).Once()

	rr := s.do(t, http.MethodDelete, "/admin/categories/"+id.String(), nil, "admin-1", true)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"Category still has products"}`, rr.Body.String())
}
