package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/internal/adapters/redis"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/ports"
)

func newTestCache(t *testing.T, opts ...redis.Option) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return redis.NewFromClient(client, opts...), mr
}

func TestRedisCache_Contract(t *testing.T) {
	cache, mr := newTestCache(t)
	ports.RunCacheContract(t, cache, mr.FastForward)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	cache, mr := newTestCache(t, redis.WithKeyPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "digest", []byte("result")))
	assert.True(t, mr.Exists("custom:digest"), "entry should live under the configured prefix")
}

func TestRedisCache_TTLIsApplied(t *testing.T) {
	cache, mr := newTestCache(t, redis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "digest", []byte("result")))

	mr.FastForward(30 * time.Second)
	_, err := cache.Get(ctx, "digest")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)
	_, err = cache.Get(ctx, "digest")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_ServerErrorIsNotAMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "digest", []byte("result")))
	mr.Close()

	_, err := cache.Get(ctx, "digest")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_Ping(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, cache.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cache.Ping(context.Background()))
}
