package domain

import "time"

// =============================================================================
// Notification matrix - fixed tier to channel policy
// =============================================================================

// Channel is one outbound delivery path.
type Channel string

const (
	ChannelPush   Channel = "push"
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelDigest Channel = "digest"
	ChannelLog    Channel = "log"
)

// MatrixEntry maps one tier to its channel set and delivery urgency.
// The matrix is fixed configuration, never mutated at runtime.
type MatrixEntry struct {
	Tier     Tier          `json:"tier"`
	Channels []Channel     `json:"channels"`
	Urgency  time.Duration `json:"urgency"` // target delivery latency
}

// HasChannel reports whether the entry includes the given channel.
func (e MatrixEntry) HasChannel(c Channel) bool {
	for _, ch := range e.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// =============================================================================
// DispatchResult - per-channel outcome of one fan-out
// =============================================================================

// ChannelResult is the outcome of one channel send.
type ChannelResult struct {
	Channel   Channel       `json:"channel"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Attempted time.Time     `json:"attempted"`
}

// DispatchResult aggregates one fan-out. A channel failure never
// fails the dispatch as a whole; callers inspect per-channel results.
type DispatchResult struct {
	AlertID   int64                     `json:"alert_id"`
	Tier      Tier                      `json:"tier"`
	Channels  map[Channel]ChannelResult `json:"channels"`
	StartedAt time.Time                 `json:"started_at"`
}

// FailedChannels returns the channels that did not succeed.
func (r *DispatchResult) FailedChannels() []Channel {
	var failed []Channel
	for ch, res := range r.Channels {
		if !res.Success {
			failed = append(failed, ch)
		}
	}
	return failed
}

// AllSucceeded reports whether every attempted channel succeeded.
func (r *DispatchResult) AllSucceeded() bool {
	for _, res := range r.Channels {
		if !res.Success {
			return false
		}
	}
	return true
}

// =============================================================================
// RealtimeEvent - SSE events pushed to the reviewer dashboard
// =============================================================================

// RealtimeEvent is delivered over SSE to connected reviewers.
type RealtimeEvent struct {
	Type      EventType   `json:"type"`
	Seq       int64       `json:"seq"`
	UserID    string      `json:"-"` // delivery target, excluded from payload
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type EventType string

const (
	EventAlertOpened       EventType = "alert.opened"
	EventAlertAcknowledged EventType = "alert.acknowledged"
	EventAlertResolved     EventType = "alert.resolved"
	EventAlertEscalated    EventType = "alert.escalated"
	EventAlertNoteAdded    EventType = "alert.note_added"

	// EventConnected opens every SSE stream so clients can confirm the
	// subscription before the first alert arrives.
	EventConnected EventType = "connected"
)

// AlertEventData is the payload for alert lifecycle events.
type AlertEventData struct {
	AlertID   int64       `json:"alert_id"`
	UserID    string      `json:"user_id"`
	Tier      Tier        `json:"tier"`
	Status    AlertStatus `json:"status"`
	Source    ScanSource  `json:"source"`
	Category  Category    `json:"category,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewAlertEvent builds a lifecycle event for one alert targeted at one
// reviewer stream.
func NewAlertEvent(eventType EventType, targetUserID string, alert *CrisisAlert) *RealtimeEvent {
	return &RealtimeEvent{
		Type:   eventType,
		UserID: targetUserID,
		Data: &AlertEventData{
			AlertID:   alert.ID,
			UserID:    alert.UserID.String(),
			Tier:      alert.Tier,
			Status:    alert.Status,
			Source:    alert.Source,
			Category:  alert.Category,
			Timestamp: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
