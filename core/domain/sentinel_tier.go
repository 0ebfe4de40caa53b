package domain

import "sentinel_server/pkg/apperr"

// =============================================================================
// Tier - severity classification of a detected crisis indicator
// =============================================================================

// Tier is the severity of a crisis indicator. Tiers are fixed and
// totally ordered: CRITICAL > HIGH > MODERATE > STANDARD > NONE.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierHigh     Tier = "HIGH"
	TierModerate Tier = "MODERATE"
	TierStandard Tier = "STANDARD"

	// TierNone means no crisis indicator was detected. It is a scan
	// outcome, not a lexicon tier.
	TierNone Tier = "NONE"
)

// tierRank encodes the severity order. Higher rank wins resolution.
var tierRank = map[Tier]int{
	TierNone:     0,
	TierStandard: 1,
	TierModerate: 2,
	TierHigh:     3,
	TierCritical: 4,
}

// Rank returns the numeric severity of the tier. Unknown tiers rank
// below NONE so they can never win a resolution.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// MoreSevereThan reports whether t outranks other.
func (t Tier) MoreSevereThan(other Tier) bool {
	return t.Rank() > other.Rank()
}

// Valid reports whether t is one of the four lexicon tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierHigh, TierModerate, TierStandard:
		return true
	}
	return false
}

// LexiconTiers lists the four lexicon tiers in descending severity.
func LexiconTiers() []Tier {
	return []Tier{TierCritical, TierHigh, TierModerate, TierStandard}
}

// ParseTier validates a tier string from an external caller.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", apperr.InvalidTier(s)
	}
	return t, nil
}

// MaxTier returns the more severe of two tiers.
func MaxTier(a, b Tier) Tier {
	if b.MoreSevereThan(a) {
		return b
	}
	return a
}

// Actionable reports whether a resolved tier warrants pipeline action
// beyond returning the scan result. STANDARD is log-only but still
// actionable for audit purposes; NONE is not.
func (t Tier) Actionable() bool {
	return t.Valid()
}

// CreatesAlert reports whether a detection at this tier opens a
// reviewable alert. STANDARD detections are logged without an alert.
func (t Tier) CreatesAlert() bool {
	switch t {
	case TierCritical, TierHigh, TierModerate:
		return true
	}
	return false
}
