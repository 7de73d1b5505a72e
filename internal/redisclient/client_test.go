package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "lock:customer:abc", lockName("customer:abc"))
	assert.Equal(t, "idempotency:webhook:evt_1", idempotencyName("webhook:evt_1"))
}

func newTestClient(t *testing.T) *Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis (set REDIS_TEST_ADDR)")
	}
	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockOwnership(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	ok, err := c.AcquireLock(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// a foreign token must not release the lock
	require.NoError(t, c.ReleaseLock(ctx, key, "owner-b"))
	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, "owner-a"))
	ok, err = c.AcquireLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.ReleaseLock(ctx, key, "owner-b"))
}

func TestExtendLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	ok, err := c.AcquireLock(ctx, key, "owner-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ExtendLock(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := c.rdb.PTTL(ctx, lockName(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)

	ok, err = c.ExtendLock(ctx, key, "owner-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, key, "owner-a"))
	ok, err = c.ExtendLock(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "released lock cannot be extended")
}

func TestIdempotencyClaim(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	first, err := c.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, c.ForgetIdempotencyKey(ctx, key))
	after, err := c.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, after)
	require.NoError(t, c.ForgetIdempotencyKey(ctx, key))
}
