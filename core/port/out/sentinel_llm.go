package out

import "context"

// TextReview is an LLM second opinion on a flagged excerpt.
type TextReview struct {
	Assessment string  `json:"assessment"` // supports, ambiguous, contradicts
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// ReviewerPort asks an LLM for a second opinion on borderline
// detections. It is advisory only: the tier resolved by the lexicon
// scan is never downgraded by the review.
type ReviewerPort interface {
	ReviewFlaggedText(ctx context.Context, excerpt string, matchedPhrase string, category string) (*TextReview, error)
}
