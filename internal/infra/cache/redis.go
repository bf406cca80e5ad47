package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker реализует domain.Locker через Redis SetNX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker создаёт локер.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock пытается захватить блокировку. TTL страхует от процессов,
// упавших до снятия.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

// Unlock снимает блокировку.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
