package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dropwise/dispatch/internal/apperr"
)

const (
	redisLockPrefix  = "dispatch:lock:"
	lockPollInterval = 10 * time.Millisecond
	lockPollMax      = 200 * time.Millisecond
)

// releaseScript deletes the lock only while it is still owned by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a cross-process locker. Each key is held with SET NX PX and
// a random owner token, so a crashed holder frees the key after ttl.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a Redis-backed locker. ttl bounds how long a crashed
// holder can block a key; wait bounds how long Lock polls before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

// Lock acquires every key or none of them.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	ordered := orderKeys(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	acquired := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := l.acquire(waitCtx, redisLockPrefix+key, token); err != nil {
			l.releaseAll(acquired, token)
			return nil, err
		}
		acquired = append(acquired, redisLockPrefix+key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(acquired, token) }) }, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	delay := lockPollInterval
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return lockTimeout(key, ctx.Err())
			}
			return apperr.Wrap(apperr.CodeStoreUnavailable, fmt.Sprintf("lock %s", key), err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return lockTimeout(key, ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > lockPollMax {
			delay = lockPollMax
		}
	}
}

func (l *RedisLocker) releaseAll(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		// best effort; an unreleased key expires after ttl
		_ = releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Err()
	}
}

func lockTimeout(key string, err error) error {
	return apperr.Wrap(apperr.CodeStoreUnavailable, fmt.Sprintf("timed out waiting for %s", key), err)
}
