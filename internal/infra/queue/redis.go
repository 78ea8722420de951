package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"x-intel/internal/domain"
)

// RedisIntelQueue реализует очередь задач на базе Redis lists.
// Запасной вариант для окружений без RabbitMQ; подтверждение тут
// формальное, сообщение из списка уже снято.
type RedisIntelQueue struct {
	client *redis.Client
	key    string
}

var _ domain.IntelQueue = (*RedisIntelQueue)(nil)

// NewRedisIntelQueue создаёт очередь по указанному ключу.
func NewRedisIntelQueue(client *redis.Client, key string) *RedisIntelQueue {
	return &RedisIntelQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisIntelQueue) Enqueue(ctx context.Context, job domain.IntelJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisIntelQueue) Receive(ctx context.Context) (domain.IntelJob, domain.IntelAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.IntelJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.IntelJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.IntelJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.IntelJob{}, nil, errors.New("redis queue: неожиданный ответ")
		}
		var job domain.IntelJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.IntelJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			// Повторная доставка: возвращаем в хвост очереди.
			payload, err := json.Marshal(job)
			if err != nil {
				return err
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
