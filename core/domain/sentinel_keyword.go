package domain

// =============================================================================
// KeywordEntry - one lexicon phrase with matching metadata
// =============================================================================

// Category groups lexicon entries for reporting and category-specific
// response text.
type Category string

const (
	CategorySuicideMethod      Category = "suicide-method"
	CategorySuicideIdeation    Category = "suicide-ideation"
	CategorySelfHarmMethod     Category = "self-harm-method"
	CategorySelfHarmIdeation   Category = "self-harm-ideation"
	CategorySubstanceRelapse   Category = "substance-relapse"
	CategorySubstanceCraving   Category = "substance-craving"
	CategoryHopelessness       Category = "hopelessness"
	CategoryDismissiveLanguage Category = "dismissive-language"
	CategoryEmotionalDistress  Category = "emotional-distress"
	CategoryAnxiety            Category = "anxiety"
)

// MatchMode selects the matching strategy for an entry. Each mode is
// an explicit variant so new strategies are added as new modes, not
// new conditionals.
type MatchMode string

const (
	// MatchExact requires a word-boundary exact match of the phrase.
	MatchExact MatchMode = "exact"

	// MatchFuzzy also accepts near-spellings within the similarity
	// threshold, in addition to exact matches.
	MatchFuzzy MatchMode = "fuzzy"
)

// KeywordEntry is one phrase in the crisis lexicon. Entries are loaded
// once at process start and never mutated.
type KeywordEntry struct {
	Phrase            string    `json:"phrase"`
	Tier              Tier      `json:"tier"`
	Category          Category  `json:"category"`
	Mode              MatchMode `json:"mode"`
	NegationSensitive bool      `json:"negation_sensitive"`
}

// FuzzyTolerant reports whether near-miss spellings should match.
func (e KeywordEntry) FuzzyTolerant() bool {
	return e.Mode == MatchFuzzy
}
