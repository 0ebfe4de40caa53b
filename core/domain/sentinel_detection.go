package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DetectionResult - outcome of one scan call
// =============================================================================

// ScanSource labels where the scanned text came from.
type ScanSource string

const (
	SourceCheckIn    ScanSource = "check_in"
	SourceChat       ScanSource = "chat"
	SourceReflection ScanSource = "reflection"
	SourceJournal    ScanSource = "journal"
	SourceGoal       ScanSource = "goal"
	SourceUnknown    ScanSource = "unknown"
)

// MatchedTerm is one lexicon hit inside a scan.
type MatchedTerm struct {
	Phrase   string   `json:"phrase"`
	Category Category `json:"category"`
	Tier     Tier     `json:"tier"`

	// Matched is the token or span that actually matched, which may
	// differ from Phrase for fuzzy hits.
	Matched string `json:"matched,omitempty"`
	Fuzzy   bool   `json:"fuzzy,omitempty"`
}

// DetectionResult is constructed fresh per scan call. It is not
// persisted directly; the alert service consumes it when ResolvedTier
// warrants action.
type DetectionResult struct {
	// InputText is the scanned string, truncated for audit display.
	InputText string     `json:"input_text"`
	Source    ScanSource `json:"source"`

	// MatchedTerms holds every surviving match across all tiers, in
	// descending tier order, for audit purposes.
	MatchedTerms []MatchedTerm `json:"matched_terms"`

	// ResolvedTier is the highest severity among surviving matches,
	// or NONE.
	ResolvedTier Tier `json:"resolved_tier"`

	// ExcludedByNegation lists terms that matched lexically but were
	// suppressed by a preceding negation.
	ExcludedByNegation []MatchedTerm `json:"excluded_by_negation,omitempty"`

	ScannedAt time.Time `json:"scanned_at"`
}

// HasMatches reports whether any non-excluded term matched.
func (r *DetectionResult) HasMatches() bool {
	return len(r.MatchedTerms) > 0
}

// TriggeringTerm returns the first matched term at the resolved tier.
func (r *DetectionResult) TriggeringTerm() (MatchedTerm, bool) {
	for _, m := range r.MatchedTerms {
		if m.Tier == r.ResolvedTier {
			return m, true
		}
	}
	return MatchedTerm{}, false
}

// =============================================================================
// DetectionAudit - persisted scan trail
// =============================================================================

// DetectionAudit is the stored record of one scan: what was scanned,
// what matched, and whether an alert was opened. Audit records are
// append-only.
type DetectionAudit struct {
	ID           string        `bson:"_id,omitempty" json:"id"`
	UserID       uuid.UUID     `bson:"user_id" json:"user_id"`
	Source       ScanSource    `bson:"source" json:"source"`
	InputExcerpt string        `bson:"input_excerpt" json:"input_excerpt"`
	ResolvedTier Tier          `bson:"resolved_tier" json:"resolved_tier"`
	MatchedTerms []MatchedTerm `bson:"matched_terms,omitempty" json:"matched_terms,omitempty"`
	Excluded     []MatchedTerm `bson:"excluded,omitempty" json:"excluded,omitempty"`
	AlertID      int64         `bson:"alert_id,omitempty" json:"alert_id,omitempty"`
	ScannedAt    time.Time     `bson:"scanned_at" json:"scanned_at"`
}

// DetectionAuditRepository stores scan audit records.
type DetectionAuditRepository interface {
	Insert(ctx context.Context, audit *DetectionAudit) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*DetectionAudit, error)
	CountByTier(ctx context.Context, since time.Time) (map[Tier]int64, error)
}
