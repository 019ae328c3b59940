package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/reconcile"
	"github.com/vasiliy-maslov/estore/internal/testutil"
)

func TestRedisDeduper(t *testing.T) {
	rdb := testutil.Redis(t)
	d := reconcile.NewRedisDeduper(rdb)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "paystack:charge.success:42")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "paystack:charge.success:42")
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := rdb.TTL(ctx, "webhook:paystack:charge.success:42").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	require.NoError(t, d.Forget(ctx, "paystack:charge.success:42"))
	afterForget, err := d.FirstSeen(ctx, "paystack:charge.success:42")
	require.NoError(t, err)
	assert.True(t, afterForget)
}
