package detection

import (
	"strings"
	"time"

	"sentinel_server/core/domain"
)

// =============================================================================
// Scanner - pure text classification
// =============================================================================

// Options hold the tunable scan policy. The defaults were validated
// against the false-positive and false-negative suites; both knobs are
// exposed through configuration.
type Options struct {
	// FuzzyThreshold is the minimum similarity ratio for a fuzzy hit.
	FuzzyThreshold float64

	// NegationWindow is how many preceding tokens are checked for a
	// negation word.
	NegationWindow int

	// MaxExcerptLen truncates the retained input text for audit display.
	MaxExcerptLen int
}

// DefaultOptions returns the tuned scan policy.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: 0.82,
		NegationWindow: 3,
		MaxExcerptLen:  500,
	}
}

// Scanner classifies free text against the crisis lexicon. Scan is
// pure and synchronous: no I/O, no shared mutable state, safe to call
// concurrently from request handlers.
type Scanner struct {
	lex  *Lexicon
	opts Options
}

// NewScanner creates a scanner over the given lexicon.
func NewScanner(lex *Lexicon, opts Options) *Scanner {
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = 0.82
	}
	if opts.NegationWindow <= 0 {
		opts.NegationWindow = 3
	}
	if opts.MaxExcerptLen <= 0 {
		opts.MaxExcerptLen = 500
	}
	return &Scanner{lex: lex, opts: opts}
}

// Scan classifies text and returns a fresh DetectionResult. It never
// fails: empty, oversized, or malformed input degrades to a NONE
// result rather than an error, because a scan failure must never block
// the pipeline.
func (s *Scanner) Scan(text string, source domain.ScanSource) *domain.DetectionResult {
	if source == "" {
		source = domain.SourceUnknown
	}

	result := &domain.DetectionResult{
		InputText:    truncate(text, s.opts.MaxExcerptLen),
		Source:       source,
		ResolvedTier: domain.TierNone,
		ScannedAt:    time.Now(),
	}

	if strings.TrimSpace(text) == "" {
		return result
	}

	normalized, tokens, offsets := normalize(text)
	if len(tokens) == 0 {
		return result
	}

	for _, tier := range domain.LexiconTiers() {
		for _, entry := range s.lex.entriesForTier(tier) {
			matched, excluded := s.matchEntry(entry, normalized, tokens, offsets)
			if matched != nil {
				result.MatchedTerms = append(result.MatchedTerms, *matched)
				result.ResolvedTier = domain.MaxTier(result.ResolvedTier, entry.Tier)
			} else if excluded != nil {
				result.ExcludedByNegation = append(result.ExcludedByNegation, *excluded)
			}
		}
	}

	return result
}

// matchEntry attempts one lexicon entry against the normalized text.
// It returns a surviving match, or the suppressed match when every
// occurrence sat inside a negation window, or neither.
func (s *Scanner) matchEntry(entry compiledEntry, normalized string, tokens []string, offsets []int) (matched, excluded *domain.MatchedTerm) {
	term := domain.MatchedTerm{
		Phrase:   entry.Phrase,
		Category: entry.Category,
		Tier:     entry.Tier,
	}

	// Exact word-boundary occurrences first.
	sawNegated := false
	for _, loc := range entry.pattern.FindAllStringIndex(normalized, -1) {
		idx := tokenIndexAt(offsets, loc[0])
		if entry.NegationSensitive && HasNegationBefore(tokens, idx, s.opts.NegationWindow) {
			sawNegated = true
			continue
		}
		term.Matched = normalized[loc[0]:loc[1]]
		return &term, nil
	}

	// Fuzzy pass over token n-grams of the phrase's word count.
	if entry.FuzzyTolerant() {
		for i := 0; i+entry.wordCount <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+entry.wordCount], " ")
			if len(gram) < 4 || gram == entry.Phrase {
				continue
			}
			if SimilarityRatio(entry.Phrase, gram) < s.opts.FuzzyThreshold {
				continue
			}
			if entry.NegationSensitive && HasNegationBefore(tokens, i, s.opts.NegationWindow) {
				sawNegated = true
				continue
			}
			term.Matched = gram
			term.Fuzzy = true
			return &term, nil
		}
	}

	if sawNegated {
		return nil, &term
	}
	return nil, nil
}

// normalize lowercases the input, strips punctuation except
// apostrophes, expands known abbreviations, and returns the rebuilt
// text plus its tokens and their byte offsets within the rebuilt text.
func normalize(text string) (string, []string, []int) {
	lower := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		case r > 127: // keep non-ASCII letters as-is
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	raw := strings.Fields(b.String())

	// Abbreviation expansion may split one token into several.
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		expanded, ok := ExpandAbbreviation(tok)
		if ok {
			tokens = append(tokens, strings.Fields(expanded)...)
		} else {
			tokens = append(tokens, tok)
		}
	}

	offsets := make([]int, len(tokens))
	pos := 0
	for i, tok := range tokens {
		offsets[i] = pos
		pos += len(tok) + 1
	}

	return strings.Join(tokens, " "), tokens, offsets
}

// tokenIndexAt maps a byte offset in the normalized text to its token
// index.
func tokenIndexAt(offsets []int, byteOffset int) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= byteOffset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
