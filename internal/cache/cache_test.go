package cache

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SetGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	c := NewFromClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	m.FastForward(2 * time.Minute)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "k2", []byte("v2"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k2"))
	got, _ = c.Get(ctx, "k2")
	assert.Nil(t, got)
}

func TestClient_FailsSafe(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1}))
	m.Close()

	ctx := context.Background()
	assert.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.Error(t, c.Ping(ctx))
}

func TestNilClient(t *testing.T) {
	var c *Client
	ctx := context.Background()

	assert.Nil(t, New("", "", 0))
	assert.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(ctx))
}
