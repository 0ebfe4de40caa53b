package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CrisisAlert - persisted record of an actionable detection
// =============================================================================

// AlertStatus tracks the review workflow. Transitions are monotonic
// OPEN -> ACKNOWLEDGED -> RESOLVED; no backward moves.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "OPEN"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// Terminal reports whether the alert can no longer change status.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved
}

// AlertNote is one annotation on an alert. Notes never change status.
type AlertNote struct {
	ID       int64     `json:"id"`
	AlertID  int64     `json:"alert_id"`
	AuthorID uuid.UUID `json:"author_id"`
	Body     string    `json:"body"`
	AddedAt  time.Time `json:"added_at"`
}

// CrisisAlert is owned by the reviewer workflow after creation.
type CrisisAlert struct {
	ID             int64       `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Tier           Tier        `json:"tier"`
	Source         ScanSource  `json:"source"`
	TriggeredBy    string      `json:"triggered_by"` // phrase that fired
	Category       Category    `json:"category"`
	FlaggedContent string      `json:"flagged_content"` // sanitized excerpt
	Status         AlertStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`

	AcknowledgedBy *uuid.UUID `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	// EscalatedAt records the last escalation re-dispatch, so a sweep
	// does not re-escalate the same alert every cycle.
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	Notes []AlertNote `json:"notes,omitempty"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	UserID *uuid.UUID
	Tier   *Tier
	Status *AlertStatus
	Source *ScanSource
	Since  *time.Time
	Limit  int
	Offset int
}

// AlertRepository persists alerts. Status transitions use conditional
// updates: the store applies the change only while the row is still in
// the expected state, so a losing concurrent writer observes zero rows
// affected and the caller maps that to an invalid transition.
type AlertRepository interface {
	Create(ctx context.Context, alert *CrisisAlert) error
	GetByID(ctx context.Context, id int64) (*CrisisAlert, error)
	List(ctx context.Context, filter *AlertFilter) ([]*CrisisAlert, int, error)

	// Acknowledge moves OPEN -> ACKNOWLEDGED. Returns false when the
	// alert was no longer OPEN at update time.
	Acknowledge(ctx context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error)

	// Resolve moves OPEN or ACKNOWLEDGED -> RESOLVED. Returns false
	// when the alert was already RESOLVED.
	Resolve(ctx context.Context, id int64, reviewerID uuid.UUID, at time.Time) (bool, error)

	// MarkEscalated stamps EscalatedAt only while the alert is still
	// OPEN. Returns false when an acknowledgment won the race.
	MarkEscalated(ctx context.Context, id int64, at time.Time) (bool, error)

	AddNote(ctx context.Context, note *AlertNote) error
	ListNotes(ctx context.Context, alertID int64) ([]AlertNote, error)

	// FindUnacknowledgedOlderThan returns OPEN alerts of the given
	// tier created before cutoff and not escalated since lastEscalation.
	FindUnacknowledgedOlderThan(ctx context.Context, tier Tier, cutoff time.Time) ([]*CrisisAlert, error)

	CountByStatus(ctx context.Context) (map[AlertStatus]int64, error)
}
