package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/testutil"
	"github.com/vasiliy-maslov/estore/internal/user"
)

func TestPostgresRepository_CreateAndToggleAdmin(t *testing.T) {
	pool := testutil.Postgres(t)
	repo := user.NewRepository(pool)
	ctx := context.Background()

	u := &user.User{ID: "uid-a", Email: "a@example.com", DisplayName: "A", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, u))
	require.ErrorIs(t, repo.Create(ctx, u), user.ErrUserExists)

	require.NoError(t, repo.SetAdmin(ctx, "uid-a", true))

	got, err := repo.GetByID(ctx, "uid-a")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.Nil(t, got.PhotoURL)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.ErrorIs(t, repo.SetAdmin(ctx, "missing", true), user.ErrNotFound)
	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestPostgresRepository_UpdateProfile(t *testing.T) {
	pool := testutil.Postgres(t)
	repo := user.NewRepository(pool)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	require.NoError(t, repo.Create(ctx, &user.User{ID: "uid-p", Email: "p@example.com", DisplayName: "P", CreatedAt: created}))

	updated := time.Now().UTC().Truncate(time.Microsecond)
	profile := user.Profile{DisplayName: "Pat", Phone: "+254711111111", Address: "Kenyatta Ave"}
	require.NoError(t, repo.UpdateProfile(ctx, "uid-p", profile, updated))

	got, err := repo.GetByID(ctx, "uid-p")
	require.NoError(t, err)
	assert.Equal(t, "Pat", got.DisplayName)
	assert.Equal(t, "+254711111111", got.Phone)
	assert.Equal(t, "Kenyatta Ave", got.Address)
	assert.Equal(t, "p@example.com", got.Email)
	assert.True(t, got.UpdatedAt.Equal(updated))
	assert.True(t, got.CreatedAt.Equal(created))

	require.ErrorIs(t, repo.UpdateProfile(ctx, "missing", profile, updated), user.ErrNotFound)
}
