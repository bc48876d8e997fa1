package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/airline-backoffice/config"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot release somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// RedisLocker is a SETNX-based mutex shared by every replica of the
// reservation service.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock blocks until key is acquired or ctx ends. The returned func releases
// the lock; if the holder outlives ttl the lock is dropped by Redis.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := lockKey(key)

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %s: %w", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

func lockKey(key string) string {
	return "lock:reservation:flight:" + key
}
