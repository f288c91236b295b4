package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	time.Sleep(30 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "expired entry should miss")

	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok, "entry without ttl never expires")
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(3), WithMemoryCleanup(0))
	defer c.Close()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
		time.Sleep(time.Millisecond)
	}
	_, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "d", []byte("d"), time.Minute))
	assert.Equal(t, 3, c.Len())
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)

	// Overwriting an existing key never evicts
	require.NoError(t, c.Set(ctx, "d", []byte("d2"), time.Minute))
	assert.Equal(t, 3, c.Len())
}

func TestMemoryCachePrefersEvictingExpired(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "old", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "stale", []byte("2"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Minute))
	_, ok, _ := c.Get(ctx, "old")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCacheSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer c.Close()

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("klines:BTCUSDT:1h:%d", i), []byte("x"), time.Millisecond))
	}
	require.NoError(t, c.Set(ctx, "keep", []byte("x"), time.Minute))

	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	require.NoError(t, SetJSON(ctx, c, "q", quote{"BTCUSDT", 65000.5}, time.Minute))

	var got quote
	ok, err := GetJSON(ctx, c, "q", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, quote{"BTCUSDT", 65000.5}, got)

	ok, err = GetJSON(ctx, c, "missing", &got)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), time.Minute))
	_, err = GetJSON(ctx, c, "bad", &got)
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "signals:")

	mock.ExpectGet("signals:price:BTCUSDT").RedisNil()
	_, ok, err := c.Get(ctx, "price:BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("signals:price:BTCUSDT", []byte(`{"p":1}`), 15*time.Second).SetVal("OK")
	require.NoError(t, c.Set(ctx, "price:BTCUSDT", []byte(`{"p":1}`), 15*time.Second))

	mock.ExpectGet("signals:price:BTCUSDT").SetVal(`{"p":1}`)
	v, ok, err := c.Get(ctx, "price:BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"p":1}`, string(v))

	mock.ExpectGet("signals:down").SetErr(errors.New("connection refused"))
	_, _, err = c.Get(ctx, "down")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, redis.Nil))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
