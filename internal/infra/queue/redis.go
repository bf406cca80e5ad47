package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
)

// RedisAnnounceQueue реализует очередь анонсов на базе Redis lists.
type RedisAnnounceQueue struct {
	client *redis.Client
	key    string
}

// NewRedisAnnounceQueue создаёт очередь по указанному ключу.
func NewRedisAnnounceQueue(client *redis.Client, key string) *RedisAnnounceQueue {
	return &RedisAnnounceQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisAnnounceQueue) Enqueue(ctx context.Context, job domain.AnnounceJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisAnnounceQueue) Pop(ctx context.Context) (domain.AnnounceJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.AnnounceJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.AnnounceJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.AnnounceJob{}, err
		}
		if len(res) != 2 {
			return domain.AnnounceJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.AnnounceJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.AnnounceJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
