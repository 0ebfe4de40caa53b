package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"sentinel_server/core/port/out"
)

const digestQueueKey = "sentinel:digest:queue"

// RedisDigestQueue implements out.DigestQueuePort on a Redis list.
// Entries accumulate during the day and Drain hands the whole batch to
// the digest sender in one shot.
type RedisDigestQueue struct {
	client *redis.Client
}

// NewRedisDigestQueue creates a new RedisDigestQueue.
func NewRedisDigestQueue(client *redis.Client) *RedisDigestQueue {
	return &RedisDigestQueue{client: client}
}

var _ out.DigestQueuePort = (*RedisDigestQueue)(nil)

// Enqueue appends one entry to the queue.
func (q *RedisDigestQueue) Enqueue(ctx context.Context, entry *out.DigestEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal digest entry: %w", err)
	}

	if err := q.client.RPush(ctx, digestQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue digest entry: %w", err)
	}
	return nil
}

// Drain atomically removes and returns every queued entry. A pipeline
// reads the full range and deletes the key in one round trip; entries
// enqueued after the read land in a fresh list and survive for the
// next drain.
func (q *RedisDigestQueue) Drain(ctx context.Context) ([]*out.DigestEntry, error) {
	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, digestQueueKey, 0, -1)
	pipe.Del(ctx, digestQueueKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain digest queue: %w", err)
	}

	raw := rangeCmd.Val()
	entries := make([]*out.DigestEntry, 0, len(raw))
	for _, item := range raw {
		var entry out.DigestEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// A malformed entry must not poison the whole batch.
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// Len returns the current queue depth.
func (q *RedisDigestQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, digestQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read digest queue length: %w", err)
	}
	return n, nil
}
