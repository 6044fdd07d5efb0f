package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "pool-1")
			require.NoError(t, err)
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), "pool-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "pool-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock() // idempotent

	unlock, err = locker.Lock(context.Background(), "pool-1")
	require.NoError(t, err)
	unlock()
}

// redisClient returns a client for REDIS_ADDR or skips the test
func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	client := redisClient(t)
	locker := NewRedisLocker(client, 5*time.Second)
	key := "test-" + t.Name()

	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, key)
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()

	unlock, err = locker.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByStaleHolder(t *testing.T) {
	client := redisClient(t)
	locker := NewRedisLocker(client, 50*time.Millisecond)
	key := "test-" + t.Name()

	stale, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	fresh, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	stale()

	val, err := client.Get(context.Background(), locker.prefix+key).Result()
	require.NoError(t, err)
	assert.NotEmpty(t, val)
	fresh()
}
