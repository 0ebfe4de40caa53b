// Package detection implements the tiered crisis-detection scan pipeline.
package detection

import (
	"regexp"
	"strings"

	"sentinel_server/core/domain"
	"sentinel_server/pkg/apperr"
)

// =============================================================================
// Crisis Lexicon
// =============================================================================

// negationWords suppress a match when they appear shortly before it.
// Temporal negators ("haven't", "stopped") cover past-tense recovery
// narratives, not just direct denial.
var negationWords = map[string]bool{
	"not":       true,
	"no":        true,
	"never":     true,
	"don't":     true,
	"dont":      true,
	"won't":     true,
	"wont":      true,
	"wouldn't":  true,
	"wouldnt":   true,
	"can't":     true,
	"cant":      true,
	"couldn't":  true,
	"couldnt":   true,
	"didn't":    true,
	"didnt":     true,
	"doesn't":   true,
	"doesnt":    true,
	"isn't":     true,
	"isnt":      true,
	"wasn't":    true,
	"wasnt":     true,
	"haven't":   true,
	"havent":    true,
	"hasn't":    true,
	"hasnt":     true,
	"stopped":   true,
	"quit":      true,
	"without":   true,
	"avoided":   true,
	"resisted":  true,
}

// abbreviations maps known crisis shorthand to its expanded phrase so
// abbreviated language is not missed.
var abbreviations = map[string]string{
	"kms":     "kill myself",
	"kys":     "kill yourself",
	"sh":      "self harm",
	"unalive": "kill myself",
	"od":      "overdose",
	"su":      "suicide",
}

// ExpandAbbreviation maps known shorthand to its expanded phrase.
// Returns the token unchanged when it is not a known abbreviation.
func ExpandAbbreviation(token string) (string, bool) {
	if expanded, ok := abbreviations[token]; ok {
		return expanded, true
	}
	return token, false
}

// compiledEntry pairs a lexicon entry with its word-boundary matcher.
type compiledEntry struct {
	domain.KeywordEntry
	pattern   *regexp.Regexp
	wordCount int
}

// Lexicon is the canonical crisis lexicon, indexed by tier then
// category. It is built once at process start and never mutated.
type Lexicon struct {
	byTier map[domain.Tier][]compiledEntry
}

// NewLexicon builds the default lexicon with compiled patterns.
func NewLexicon() *Lexicon {
	lex := &Lexicon{byTier: make(map[domain.Tier][]compiledEntry)}
	for _, e := range defaultEntries() {
		lex.byTier[e.Tier] = append(lex.byTier[e.Tier], compiledEntry{
			KeywordEntry: e,
			pattern:      createKeywordPattern(e.Phrase),
			wordCount:    len(strings.Fields(e.Phrase)),
		})
	}
	return lex
}

// KeywordsForTier returns the entries for one tier in lexicon order.
func (l *Lexicon) KeywordsForTier(tier domain.Tier) ([]domain.KeywordEntry, error) {
	if !tier.Valid() {
		return nil, apperr.InvalidTier(string(tier))
	}

	compiled := l.byTier[tier]
	entries := make([]domain.KeywordEntry, len(compiled))
	for i, c := range compiled {
		entries[i] = c.KeywordEntry
	}
	return entries, nil
}

// KeywordCounts returns the entry count per tier, for monitoring.
func (l *Lexicon) KeywordCounts() map[domain.Tier]int {
	counts := make(map[domain.Tier]int, len(l.byTier))
	for tier, entries := range l.byTier {
		counts[tier] = len(entries)
	}
	return counts
}

// entriesForTier returns the compiled entries for scanning.
func (l *Lexicon) entriesForTier(tier domain.Tier) []compiledEntry {
	return l.byTier[tier]
}

// HasNegationBefore scans up to window tokens preceding matchIndex for
// a negation word.
func HasNegationBefore(tokens []string, matchIndex, window int) bool {
	start := matchIndex - window
	if start < 0 {
		start = 0
	}
	for i := start; i < matchIndex && i < len(tokens); i++ {
		if negationWords[tokens[i]] {
			return true
		}
	}
	return false
}

// createKeywordPattern builds a word-boundary-safe matcher so a phrase
// never matches inside an unrelated word ("sad" must not hit "saddle").
func createKeywordPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
}

// defaultEntries is the canonical lexicon. Ordering within a tier
// groups entries by category.
func defaultEntries() []domain.KeywordEntry {
	return []domain.KeywordEntry{
		// =====================================================================
		// CRITICAL - active suicide language
		// =====================================================================
		{Phrase: "kill myself", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "kill yourself", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "end my life", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "take my own life", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "suicide", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "want to die", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "better off dead", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "end it all", Tier: domain.TierCritical, Category: domain.CategorySuicideIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		// "no reason to live" carries its own negator, so the negation
		// window must not suppress it.
		{Phrase: "no reason to live", Tier: domain.TierCritical, Category: domain.CategoryHopelessness, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "overdose", Tier: domain.TierCritical, Category: domain.CategorySuicideMethod, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "hang myself", Tier: domain.TierCritical, Category: domain.CategorySuicideMethod, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "jump off", Tier: domain.TierCritical, Category: domain.CategorySuicideMethod, Mode: domain.MatchExact, NegationSensitive: true},

		// =====================================================================
		// HIGH - self-harm and active relapse
		// =====================================================================
		{Phrase: "hurt myself", Tier: domain.TierHigh, Category: domain.CategorySelfHarmIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "harm myself", Tier: domain.TierHigh, Category: domain.CategorySelfHarmIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "self harm", Tier: domain.TierHigh, Category: domain.CategorySelfHarmIdeation, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "cut myself", Tier: domain.TierHigh, Category: domain.CategorySelfHarmMethod, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "burn myself", Tier: domain.TierHigh, Category: domain.CategorySelfHarmMethod, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "punish myself", Tier: domain.TierHigh, Category: domain.CategorySelfHarmIdeation, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "relapsed", Tier: domain.TierHigh, Category: domain.CategorySubstanceRelapse, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "using again", Tier: domain.TierHigh, Category: domain.CategorySubstanceRelapse, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "started drinking", Tier: domain.TierHigh, Category: domain.CategorySubstanceRelapse, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "bought drugs", Tier: domain.TierHigh, Category: domain.CategorySubstanceRelapse, Mode: domain.MatchExact, NegationSensitive: true},

		// =====================================================================
		// MODERATE - hopelessness and craving
		// =====================================================================
		{Phrase: "hopeless", Tier: domain.TierModerate, Category: domain.CategoryHopelessness, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "worthless", Tier: domain.TierModerate, Category: domain.CategoryHopelessness, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "give up", Tier: domain.TierModerate, Category: domain.CategoryHopelessness, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "no point anymore", Tier: domain.TierModerate, Category: domain.CategoryHopelessness, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "can't go on", Tier: domain.TierModerate, Category: domain.CategoryHopelessness, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "nobody cares", Tier: domain.TierModerate, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "empty inside", Tier: domain.TierModerate, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "craving", Tier: domain.TierModerate, Category: domain.CategorySubstanceCraving, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "tempted to use", Tier: domain.TierModerate, Category: domain.CategorySubstanceCraving, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "using", Tier: domain.TierModerate, Category: domain.CategorySubstanceCraving, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "one drink", Tier: domain.TierModerate, Category: domain.CategorySubstanceCraving, Mode: domain.MatchExact, NegationSensitive: true},

		// =====================================================================
		// STANDARD - distress worth logging, no outbound notification
		// =====================================================================
		{Phrase: "anxious", Tier: domain.TierStandard, Category: domain.CategoryAnxiety, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "panic attack", Tier: domain.TierStandard, Category: domain.CategoryAnxiety, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "stressed", Tier: domain.TierStandard, Category: domain.CategoryAnxiety, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "overwhelmed", Tier: domain.TierStandard, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "lonely", Tier: domain.TierStandard, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchFuzzy, NegationSensitive: true},
		{Phrase: "sad", Tier: domain.TierStandard, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "exhausted", Tier: domain.TierStandard, Category: domain.CategoryEmotionalDistress, Mode: domain.MatchExact, NegationSensitive: true},
		{Phrase: "who cares", Tier: domain.TierStandard, Category: domain.CategoryDismissiveLanguage, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "whatever happens happens", Tier: domain.TierStandard, Category: domain.CategoryDismissiveLanguage, Mode: domain.MatchExact, NegationSensitive: false},
		{Phrase: "tired of everything", Tier: domain.TierStandard, Category: domain.CategoryDismissiveLanguage, Mode: domain.MatchExact, NegationSensitive: false},
	}
}
