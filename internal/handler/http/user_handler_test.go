package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	handler "github.com/vasiliy-maslov/estore/internal/handler/http"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/user"
)

func TestUserHandler_GetMe(t *testing.T) {
	s := newTestServer()
	s.users.On("GetUser", mock.Anything, "uid-1").Return(&user.User{ID: "uid-1", Email: "a@example.com"}, nil).Once()

	rr := s.do(t, http.MethodGet, "/me", nil, "uid-1", false)
	require.Equal(t, http.StatusOK, rr.Code)

	var got user.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "uid-1", got.ID)
	assert.False(t, got.IsAdmin)
}

func TestUserHandler_SetAdmin(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		body     interface{}
		setup    func(s *testServer)
		wantCode int
		wantBody string
	}{
		{
			name:   "promote_other_user",
			target: "uid-2",
			body:   map[string]bool{"is_admin": true},
			setup: func(s *testServer) {
				s.users.On("SetAdmin", mock.Anything, "admin-1", "uid-2", true).
					Return(&user.User{ID: "uid-2", IsAdmin: true}, nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name:   "self_toggle_forbidden",
			target: "admin-1",
			body:   map[string]bool{"is_admin": false},
			setup: func(s *testServer) {
				s.users.On("SetAdmin", mock.Anything, "admin-1", "admin-1", false).
					Return(nil, user.ErrCannotChangeOwnAdmin).Once()
			},
			wantCode: http.StatusForbidden,
			wantBody: `{"error":"You cannot change your own admin status"}`,
		},
		{
			name:     "missing_flag",
			target:   "uid-2",
			body:     map[string]string{},
			setup:    func(s *testServer) {},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Validation failed","details":{"is_admin":"This field is required"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			tt.setup(s)

			rr := s.do(t, http.MethodPatch, "/admin/users/"+tt.target+"/admin", tt.body, "admin-1", true)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
			s.users.AssertExpectations(t)
		})
	}
}

func TestAdminHandler_Stats(t *testing.T) {
	s := newTestServer()
	s.catalog.On("CountProducts", mock.Anything).Return(12, nil).Once()
	s.users.On("CountUsers", mock.Anything).Return(4, nil).Once()
	s.orders.On("Summary", mock.Anything).Return(&order.Summary{
		TotalOrders: 3,
		Revenue:     decimal.RequireFromString("4500.75"),
	}, nil).Once()

	rr := s.do(t, http.MethodGet, "/admin/stats", nil, "admin-1", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var got handler.StatsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, 12, got.TotalProducts)
	assert.Equal(t, 3, got.TotalOrders)
	assert.Equal(t, 4, got.TotalUsers)
	assert.True(t, decimal.RequireFromString("4500.75").Equal(got.Revenue))
	assert.NotNil(t, got.RecentOrders)
}

func TestUserHandler_UpdateMe(t *testing.T) {
	tests := []struct {
		name     string
		body     interface{}
		setup    func(s *testServer)
		wantCode int
		wantBody string
	}{
		{
			name: "updates_own_profile",
			body: map[string]string{"display_name": "Amina", "phone": "+254700000000", "address": "Moi Ave"},
			setup: func(s *testServer) {
				s.users.On("UpdateProfile", mock.Anything, "uid-1",
					user.Profile{DisplayName: "Amina", Phone: "+254700000000", Address: "Moi Ave"}).
					Return(&user.User{ID: "uid-1", DisplayName: "Amina", Phone: "+254700000000", Address: "Moi Ave"}, nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "missing_display_name",
			body:     map[string]string{"phone": "1"},
			setup:    func(s *testServer) {},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Validation failed","details":{"display_name":"This field is required"}}`,
		},
		{
			name:     "unknown_field",
			body:     map[string]string{"display_name": "A", "is_admin": "true"},
			setup:    func(s *testServer) {},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Invalid request payload"}`,
		},
		{
			name: "blank_display_name",
			body: map[string]string{"display_name": "   "},
			setup: func(s *testServer) {
				s.users.On("UpdateProfile", mock.Anything, "uid-1", user.Profile{DisplayName: "   "}).
					Return(nil, fmt.Errorf("%w: display name is required", user.ErrInvalidProfile)).Once()
			},
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"invalid profile: display name is required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			tt.setup(s)

			rr := s.do(t, http.MethodPatch, "/me", tt.body, "uid-1", false)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
			s.users.AssertExpectations(t)
		})
	}
}
