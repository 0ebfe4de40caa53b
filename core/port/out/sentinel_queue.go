package out

import (
	"context"
	"time"

	"sentinel_server/core/domain"
)

// =============================================================================
// Dedup and digest queue ports (backed by Redis)
// =============================================================================

// DedupPort suppresses duplicate alerts: a user who trips the same
// tier repeatedly within the cooldown window gets one alert, not one
// per message.
type DedupPort interface {
	// Acquire returns true when no alert for (userID, tier) exists
	// within the cooldown window, and atomically claims the window.
	Acquire(ctx context.Context, userID string, tier domain.Tier, cooldown time.Duration) (bool, error)

	// Release clears the window early, used when alert creation fails
	// after the claim.
	Release(ctx context.Context, userID string, tier domain.Tier) error
}

// DigestEntry is one deferred notification queued for the daily digest.
type DigestEntry struct {
	AlertID   int64             `json:"alert_id"`
	UserID    string            `json:"user_id"`
	Tier      domain.Tier       `json:"tier"`
	Category  domain.Category   `json:"category"`
	Source    domain.ScanSource `json:"source"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// DigestQueuePort accumulates MODERATE-tier notifications for the
// once-daily batch send.
type DigestQueuePort interface {
	Enqueue(ctx context.Context, entry *DigestEntry) error

	// Drain atomically removes and returns every queued entry.
	Drain(ctx context.Context) ([]*DigestEntry, error)

	Len(ctx context.Context) (int64, error)
}
