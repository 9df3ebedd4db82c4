//go:build integration

package store

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"hookgate/internal/logger"
)

func setupRedis(t *testing.T) *redisclient.Client {
	t.Helper()

	ctx := context.Background()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis uri: %v", err)
	}

	opt, err := redisclient.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redisclient.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		t.Fatalf("failed to ping redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestRedisBackend_Operations(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	r := NewRedisBackend(client)

	require.NoError(t, r.Ping(ctx))

	_, ok, err := r.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "k", "v", time.Minute))
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	exists, err := r.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, r.Delete(ctx, "k"))
	exists, err = r.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisBackend_SetNX(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	r := NewRedisBackend(client)

	ok, err := r.SetNX(ctx, "replay:evt", "1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetNX(ctx, "replay:evt", "2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	time.Sleep(1500 * time.Millisecond)

	ok, err = r.SetNX(ctx, "replay:evt", "3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisBackend_SetNXConcurrent(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	r := NewRedisBackend(client)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := r.SetNX(ctx, "replay:race", "1", time.Minute); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisBackend_IncrementSetsTTLOnce(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	r := NewRedisBackend(client)

	n, err := r.Increment(ctx, "ratelimit:c", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl1, err := client.PTTL(ctx, "ratelimit:c").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl1, time.Duration(0))

	time.Sleep(50 * time.Millisecond)
	n, err = r.Increment(ctx, "ratelimit:c", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl2, err := client.PTTL(ctx, "ratelimit:c").Result()
	require.NoError(t, err)
	assert.Less(t, ttl2, ttl1, "second increment must not refresh the expiry")

	require.NoError(t, r.Set(ctx, "text", "abc", 0))
	_, err = r.Increment(ctx, "text", 0)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestFallbackStore_RedisOutageAndRecovery(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	broken := redisclient.NewClient(&redisclient.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
	s := NewFallbackStore(NewRedisBackend(broken), NewMemoryBackend(0), Options{
		OperationTimeout: 100 * time.Millisecond,
		RecheckInitial:   10 * time.Millisecond,
		RecheckMax:       50 * time.Millisecond,
	}, logger.NopLogger())
	defer s.Close()

	ok, err := s.SetNX(ctx, "replay:x", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ModeFallback, s.Mode())

	healthy := NewFallbackStore(NewRedisBackend(client), NewMemoryBackend(0), Options{
		OperationTimeout: time.Second,
		RecheckInitial:   10 * time.Millisecond,
		RecheckMax:       50 * time.Millisecond,
	}, logger.NopLogger())

	n, err := healthy.Increment(ctx, "ratelimit:y", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, ModeDurable, healthy.Mode())
}
