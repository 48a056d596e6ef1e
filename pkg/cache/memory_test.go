package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Value: 1.5}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "a", Value: 1.5}, got)

	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var got int
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	for _, k := range []string{"stats:5", "stats:15", "other"} {
		require.NoError(t, c.Set(ctx, k, k, time.Minute))
	}
	require.NoError(t, c.DeleteByPattern(ctx, BuildPattern("stats:")))

	var got string
	assert.ErrorIs(t, c.Get(ctx, "stats:5", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "stats:15", &got), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "other", &got))
	assert.Equal(t, "other", got)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "dashboard:5:v1", GenerateKeyWithParams("dashboard", "5", "v1"))
}
