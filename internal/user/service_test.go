package user_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/user"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]user.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]user.User), args.Error(1)
}

func (m *MockUserRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	args := m.Called(ctx, id, isAdmin)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id string, profile user.Profile, updatedAt time.Time) error {
	args := m.Called(ctx, id, profile, updatedAt)
	return args.Error(0)
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestUserService_EnsureUser_ExistingUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := user.NewService(mockRepo)

	existing := &user.User{ID: "uid-1", Email: "a@example.com", IsAdmin: true, CreatedAt: time.Now()}
	mockRepo.On("GetByID", mock.Anything, "uid-1").Return(existing, nil).Once()

	got, err := svc.EnsureUser(context.Background(), user.Identity{Subject: "uid-1", Email: "a@example.com"})
	require.NoError(t, err)
	if diff := cmp.Diff(existing, got); diff != "" {
		t.Errorf("EnsureUser() mismatch (-want +got):\n%s", diff)
	}
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestUserService_EnsureUser_CreatesNonAdmin(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := user.NewService(mockRepo)

	mockRepo.On("GetByID", mock.Anything, "uid-2").Return(nil, user.ErrNotFound).Once()
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *user.User) bool {
		return u.ID == "uid-2" && u.Email == "b@example.com" && !u.IsAdmin &&
			u.PhotoURL != nil && *u.PhotoURL == "https://img.example.com/b.png"
	})).Return(nil).Once()

	got, err := svc.EnsureUser(context.Background(), user.Identity{
		Subject:  "uid-2",
		Email:    "b@example.com",
		Name:     "Bee",
		PhotoURL: "https://img.example.com/b.png",
	})
	require.NoError(t, err)
	assert.False(t, got.IsAdmin)
	assert.Equal(t, "Bee", got.DisplayName)
	assert.False(t, got.CreatedAt.IsZero())
	mockRepo.AssertExpectations(t)
}

func TestUserService_EnsureUser_CreateRace(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := user.NewService(mockRepo)

	stored := &user.User{ID: "uid-3", Email: "c@example.com"}
	mockRepo.On("GetByID", mock.Anything, "uid-3").Return(nil, user.ErrNotFound).Once()
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*user.User")).Return(user.ErrUserExists).Once()
	mockRepo.On("GetByID", mock.Anything, "uid-3").Return(stored, nil).Once()

	got, err := svc.EnsureUser(context.Background(), user.Identity{Subject: "uid-3", Email: "c@example.com"})
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	mockRepo.AssertExpectations(t)
}

func TestUserService_EnsureUser_EmptySubject(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := user.NewService(mockRepo)

	_, err := svc.EnsureUser(context.Background(), user.Identity{Subject: "  "})
	require.Error(t, err)
	mockRepo.AssertExpectations(t)
}

func TestUserService_SetAdmin(t *testing.T) {
	tests := []struct {
		name      string
		actorID   string
		targetID  string
		isAdmin   bool
		setupMock func(m *MockUserRepository)
		wantErrIs error
	}{
		{
			name:      "self_toggle_rejected_without_write",
			actorID:   "admin-1",
			targetID:  "admin-1",
			isAdmin:   false,
			setupMock: func(m *MockUserRepository) {},
			wantErrIs: user.ErrCannotChangeOwnAdmin,
		},
		{
			name:     "target_not_found",
			actorID:  "admin-1",
			targetID: "ghost",
			isAdmin:  true,
			setupMock: func(m *MockUserRepository) {
				m.On("SetAdmin", mock.Anything, "ghost", true).Return(user.ErrNotFound).Once()
			},
			wantErrIs: user.ErrNotFound,
		},
		{
			name:     "promote_other_user",
			actorID:  "admin-1",
			targetID: "uid-9",
			isAdmin:  true,
			setupMock: func(m *MockUserRepository) {
				m.On("SetAdmin", mock.Anything, "uid-9", true).Return(nil).Once()
				m.On("GetByID", mock.Anything, "uid-9").Return(&user.User{ID: "uid-9", IsAdmin: true}, nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)
			svc := user.NewService(mockRepo)

			got, err := svc.SetAdmin(context.Background(), tt.actorID, tt.targetID, tt.isAdmin)
			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.isAdmin, got.IsAdmin)
			}

			if tt.actorID == tt.targetID {
				mockRepo.AssertNotCalled(t, "SetAdmin", mock.Anything, mock.Anything, mock.Anything)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestUserService_CountUsers_Error(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := user.NewService(mockRepo)

	dbErr := errors.New("connection reset")
	mockRepo.On("Count", mock.Anything).Return(0, dbErr).Once()

	_, err := svc.CountUsers(context.Background())
	require.ErrorIs(t, err, dbErr)
}

func TestUserService_UpdateProfile(t *testing.T) {
	t.Run("trims_and_saves", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		svc := user.NewService(mockRepo)

		want := user.Profile{DisplayName: "Amina W", Phone: "+254700000000", Address: "12 Moi Ave, Nairobi"}
		mockRepo.On("UpdateProfile", mock.Anything, "uid-1", want, mock.AnythingOfType("time.Time")).Return(nil).Once()
		mockRepo.On("GetByID", mock.Anything, "uid-1").
			Return(&user.User{ID: "uid-1", DisplayName: want.DisplayName, Phone: want.Phone, Address: want.Address}, nil).Once()

		got, err := svc.UpdateProfile(context.Background(), "uid-1", user.Profile{
			DisplayName: "  Amina W ",
			Phone:       " +254700000000",
			Address:     "12 Moi Ave, Nairobi  ",
		})
		require.NoError(t, err)
		assert.Equal(t, "+254700000000", got.Phone)
		mockRepo.AssertExpectations(t)
	})

	t.Run("blank_display_name_rejected_without_write", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		svc := user.NewService(mockRepo)

		_, err := svc.UpdateProfile(context.Background(), "uid-1", user.Profile{DisplayName: "   ", Phone: "1"})
		require.ErrorIs(t, err, user.ErrInvalidProfile)
		mockRepo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown_user", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		svc := user.NewService(mockRepo)

		mockRepo.On("UpdateProfile", mock.Anything, "ghost", mock.Anything, mock.Anything).Return(user.ErrNotFound).Once()

		_, err := svc.UpdateProfile(context.Background(), "ghost", user.Profile{DisplayName: "G"})
		require.ErrorIs(t, err, user.ErrNotFound)
		mockRepo.AssertExpectations(t)
	})
}
