// Package messaging provides Redis-backed adapters for dedup and
// deferred-notification queues.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel_server/core/domain"
	"sentinel_server/core/port/out"
)

const dedupKeyPrefix = "sentinel:dedup:"

// RedisDedup implements out.DedupPort using SET NX with a TTL. The
// claim and its expiry are a single atomic operation, so two scans
// racing on the same (user, tier) pair can never both acquire.
type RedisDedup struct {
	client *redis.Client
}

// NewRedisDedup creates a new RedisDedup.
func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

var _ out.DedupPort = (*RedisDedup)(nil)

func dedupKey(userID string, tier domain.Tier) string {
	return dedupKeyPrefix + userID + ":" + string(tier)
}

// Acquire claims the cooldown window for (userID, tier). Returns false
// when an alert in the window already holds it.
func (d *RedisDedup) Acquire(ctx context.Context, userID string, tier domain.Tier, cooldown time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(userID, tier), time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("dedup acquire: %w", err)
	}
	return ok, nil
}

// Release clears the window early after a failed alert creation.
func (d *RedisDedup) Release(ctx context.Context, userID string, tier domain.Tier) error {
	if err := d.client.Del(ctx, dedupKey(userID, tier)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}
