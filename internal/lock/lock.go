package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotAcquired is returned when the context ends before the lock is held.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker serializes work per key.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates a new in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock acquires key
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every instance using the same redis.
// Locks expire after ttl so a crashed holder cannot wedge a pool.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// NewRedisLocker creates a redis-backed locker
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "aether:staking:lock:",
	}
}

// Lock acquires key with SET NX PX, polling until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the caller's ctx is already cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{name}, token).Err(); err != nil {
				logrus.WithError(err).WithField("key", name).Warn("Failed to release redis lock")
			}
		})
	}, nil
}
