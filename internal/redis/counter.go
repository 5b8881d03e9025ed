package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// QueueCounter hands out queue numbers from a single Redis INCR key, so
// numbers are strictly increasing and never reused across every scheduler
// instance in the deployment. Scope is global, not per department: the
// counter only serves as an arrival-order tie-break, per-queue positions are
// derived at read time.
type QueueCounter struct {
	client *redis.Client
	key    string
}

func NewQueueCounter(client *redis.Client, key string) *QueueCounter {
	if key == "" {
		key = "queue:counter"
	}
	return &QueueCounter{client: client, key: key}
}

func (c *QueueCounter) Next(ctx context.Context) (int64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return n, nil
}
