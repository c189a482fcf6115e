package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harrylevesque/callform/internal/models"
)

// RedisQueue keeps each owner's notifications in the list "notifications:<owner>".
type RedisQueue struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQueue connects to addr and pings it. A zero ttl keeps lists forever.
func NewRedisQueue(ctx context.Context, addr, password string, ttl time.Duration) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisQueue{client: client, ttl: ttl}, nil
}

func key(owner string) string {
	return "notifications:" + owner
}

func (q *RedisQueue) Push(ctx context.Context, owner string, n models.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return err
	}
	k := key(owner)
	if err := q.client.RPush(ctx, k, value).Err(); err != nil {
		return err
	}
	if q.ttl > 0 {
		return q.client.Expire(ctx, k, q.ttl).Err()
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context, owner string) ([]models.Notification, error) {
	raw, err := q.client.LRange(ctx, key(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (q *RedisQueue) Ack(ctx context.Context, owner, id string) error {
	k := key(owner)
	raw, err := q.client.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, item := range raw {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		if n.ID != id {
			continue
		}
		removed, err := q.client.LRem(ctx, k, 1, item).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// acknowledged concurrently
			return ErrNotFound
		}
		return nil
	}
	return ErrNotFound
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
