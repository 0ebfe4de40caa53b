package out

import (
	"context"

	"sentinel_server/core/domain"
)

// RealtimePort pushes alert lifecycle events to connected reviewers.
type RealtimePort interface {
	// Subscribe opens an event channel for one reviewer.
	Subscribe(userID string) <-chan *domain.RealtimeEvent

	Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent)

	// Push delivers an event to one reviewer.
	Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error

	// Broadcast delivers an event to every connected reviewer.
	Broadcast(ctx context.Context, event *domain.RealtimeEvent) error

	ConnectedCount() int
	IsConnected(userID string) bool
}
