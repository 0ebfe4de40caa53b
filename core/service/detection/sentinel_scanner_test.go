package detection

import (
	"reflect"
	"strings"
	"testing"

	"sentinel_server/core/domain"
)

func newTestScanner() *Scanner {
	return NewScanner(NewLexicon(), DefaultOptions())
}

func TestScan_EmptyInput(t *testing.T) {
	s := newTestScanner()

	tests := []struct {
		name string
		text string
	}{
		{"empty string", ""},
		{"whitespace only", "   \t\n  "},
		{"punctuation only", "!!! ... ???"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Scan(tt.text, domain.SourceCheckIn)
			if result.ResolvedTier != domain.TierNone {
				t.Errorf("ResolvedTier = %v, want NONE", result.ResolvedTier)
			}
			if len(result.MatchedTerms) != 0 {
				t.Errorf("MatchedTerms = %v, want empty", result.MatchedTerms)
			}
		})
	}
}

func TestScan_CriticalScenario(t *testing.T) {
	s := newTestScanner()

	result := s.Scan("I'm going to kill myself tonight", domain.SourceChat)

	if result.ResolvedTier != domain.TierCritical {
		t.Fatalf("ResolvedTier = %v, want CRITICAL", result.ResolvedTier)
	}

	term, ok := result.TriggeringTerm()
	if !ok {
		t.Fatal("expected a triggering term")
	}
	if term.Phrase != "kill myself" {
		t.Errorf("TriggeringTerm.Phrase = %q, want %q", term.Phrase, "kill myself")
	}
}

func TestScan_NegatedRecoveryLanguage(t *testing.T) {
	s := newTestScanner()

	result := s.Scan("I haven't thought about using in weeks, feeling proud", domain.SourceCheckIn)

	if result.ResolvedTier != domain.TierNone {
		t.Fatalf("ResolvedTier = %v, want NONE", result.ResolvedTier)
	}
	if len(result.ExcludedByNegation) == 0 {
		t.Fatal("expected the substance term in ExcludedByNegation")
	}

	found := false
	for _, ex := range result.ExcludedByNegation {
		if ex.Phrase == "using" {
			found = true
		}
	}
	if !found {
		t.Errorf("ExcludedByNegation = %v, want entry for %q", result.ExcludedByNegation, "using")
	}
}

func TestScan_StandardOnly(t *testing.T) {
	s := newTestScanner()

	result := s.Scan("Just feeling a bit anxious about my job interview", domain.SourceReflection)

	if result.ResolvedTier != domain.TierStandard {
		t.Fatalf("ResolvedTier = %v, want STANDARD", result.ResolvedTier)
	}
	if result.ResolvedTier.CreatesAlert() {
		t.Error("STANDARD tier must not create an alert")
	}
}

func TestScan_NegationSuppression(t *testing.T) {
	s := newTestScanner()

	tests := []struct {
		name     string
		text     string
		wantTier domain.Tier
	}{
		{"direct denial", "I do not want to hurt myself", domain.TierNone},
		{"never form", "I would never hurt myself", domain.TierNone},
		{"unnegated", "I want to hurt myself", domain.TierHigh},
		{"negation outside window", "I am not sure whether anyone would want to hurt myself", domain.TierHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Scan(tt.text, domain.SourceChat)
			if result.ResolvedTier != tt.wantTier {
				t.Errorf("Scan(%q) tier = %v, want %v", tt.text, result.ResolvedTier, tt.wantTier)
			}
		})
	}
}

func TestScan_SelfNegatingPhraseNotSuppressed(t *testing.T) {
	s := newTestScanner()

	// "no reason to live" carries its own negator and must still fire.
	result := s.Scan("there is no reason to live anymore", domain.SourceJournal)
	if result.ResolvedTier != domain.TierCritical {
		t.Errorf("ResolvedTier = %v, want CRITICAL", result.ResolvedTier)
	}
}

func TestScan_TierOrdering(t *testing.T) {
	s := newTestScanner()

	// One CRITICAL term alongside several STANDARD terms: severity
	// wins, not count.
	text := "I feel sad and lonely and anxious and exhausted but honestly I want to die"
	result := s.Scan(text, domain.SourceCheckIn)

	if result.ResolvedTier != domain.TierCritical {
		t.Fatalf("ResolvedTier = %v, want CRITICAL", result.ResolvedTier)
	}

	// All surviving matches are retained for audit, not just the
	// winning tier.
	tiers := map[domain.Tier]bool{}
	for _, m := range result.MatchedTerms {
		tiers[m.Tier] = true
	}
	if !tiers[domain.TierStandard] {
		t.Error("expected STANDARD matches retained alongside CRITICAL")
	}
}

func TestScan_WordBoundarySafety(t *testing.T) {
	s := newTestScanner()

	safe := []string{
		"I want to diet and exercise more",
		"time to saddle up and ride",
		"she sharpened every pencil on the desk",
		"the assassin film was too long",
		"my new diet applied from monday",
		"the movie was obnoxious but fun",
		"we reused the old furniture",
	}

	for _, text := range safe {
		t.Run(text, func(t *testing.T) {
			result := s.Scan(text, domain.SourceChat)
			if result.ResolvedTier != domain.TierNone {
				t.Errorf("Scan(%q) tier = %v with matches %v, want NONE",
					text, result.ResolvedTier, result.MatchedTerms)
			}
		})
	}
}

func TestScan_AbbreviationExpansion(t *testing.T) {
	s := newTestScanner()

	tests := []struct {
		text     string
		wantTier domain.Tier
	}{
		{"i want to kms", domain.TierCritical},
		{"been thinking about sh again", domain.TierHigh},
		{"going to unalive myself", domain.TierCritical},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result := s.Scan(tt.text, domain.SourceChat)
			if result.ResolvedTier != tt.wantTier {
				t.Errorf("Scan(%q) tier = %v, want %v", tt.text, result.ResolvedTier, tt.wantTier)
			}
		})
	}
}

func TestScan_FuzzyMatch(t *testing.T) {
	s := newTestScanner()

	// Near-miss spelling of a fuzzy-tolerant CRITICAL phrase.
	result := s.Scan("i want to kil myself", domain.SourceChat)
	if result.ResolvedTier != domain.TierCritical {
		t.Fatalf("ResolvedTier = %v, want CRITICAL", result.ResolvedTier)
	}

	term, _ := result.TriggeringTerm()
	if !term.Fuzzy {
		t.Error("expected a fuzzy match")
	}
	if term.Matched != "kil myself" {
		t.Errorf("Matched = %q, want %q", term.Matched, "kil myself")
	}
}

func TestScan_Idempotent(t *testing.T) {
	s := newTestScanner()
	text := "feeling hopeless and want to give up"

	first := s.Scan(text, domain.SourceJournal)
	second := s.Scan(text, domain.SourceJournal)

	if first.ResolvedTier != second.ResolvedTier {
		t.Errorf("tiers differ across scans: %v vs %v", first.ResolvedTier, second.ResolvedTier)
	}
	if !reflect.DeepEqual(first.MatchedTerms, second.MatchedTerms) {
		t.Errorf("matches differ across scans:\n%v\n%v", first.MatchedTerms, second.MatchedTerms)
	}
}

func TestScan_OversizedInput(t *testing.T) {
	s := newTestScanner()

	text := strings.Repeat("the weather is fine today. ", 5000) + "i want to die"
	result := s.Scan(text, domain.SourceChat)

	if result.ResolvedTier != domain.TierCritical {
		t.Errorf("ResolvedTier = %v, want CRITICAL", result.ResolvedTier)
	}
	if len([]rune(result.InputText)) > 500 {
		t.Errorf("InputText not truncated: %d runes", len([]rune(result.InputText)))
	}
}

func TestScan_MalformedEncoding(t *testing.T) {
	s := newTestScanner()

	// Invalid UTF-8 must degrade to NONE, never fail.
	result := s.Scan("\xff\xfe broken \x80 bytes", domain.SourceChat)
	if result.ResolvedTier != domain.TierNone {
		t.Errorf("ResolvedTier = %v, want NONE", result.ResolvedTier)
	}
}

func TestKeywordsForTier(t *testing.T) {
	lex := NewLexicon()

	for _, tier := range domain.LexiconTiers() {
		entries, err := lex.KeywordsForTier(tier)
		if err != nil {
			t.Fatalf("KeywordsForTier(%v) error = %v", tier, err)
		}
		if len(entries) == 0 {
			t.Errorf("KeywordsForTier(%v) returned no entries", tier)
		}
		for _, e := range entries {
			if e.Tier != tier {
				t.Errorf("entry %q in tier %v listing has tier %v", e.Phrase, tier, e.Tier)
			}
		}
	}

	if _, err := lex.KeywordsForTier(domain.Tier("SEVERE")); err == nil {
		t.Error("expected error for unrecognized tier")
	}
	if _, err := lex.KeywordsForTier(domain.TierNone); err == nil {
		t.Error("NONE is not a lexicon tier, expected error")
	}
}

func TestKeywordCounts(t *testing.T) {
	lex := NewLexicon()
	counts := lex.KeywordCounts()

	total := 0
	for _, tier := range domain.LexiconTiers() {
		if counts[tier] == 0 {
			t.Errorf("no entries counted for tier %v", tier)
		}
		total += counts[tier]
	}
	if total != len(defaultEntries()) {
		t.Errorf("counted %d entries, lexicon has %d", total, len(defaultEntries()))
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"suicide", "suicid", 1},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		a, b    string
		atLeast float64
		below   float64
	}{
		{"suicide", "suicide", 1.0, 1.01},
		{"suicide", "suicid", 0.85, 0.87},
		{"sad", "saddle", 0.0, 0.6},
	}

	for _, tt := range tests {
		got := SimilarityRatio(tt.a, tt.b)
		if got < tt.atLeast || got >= tt.below {
			t.Errorf("SimilarityRatio(%q, %q) = %f, want in [%f, %f)", tt.a, tt.b, got, tt.atLeast, tt.below)
		}
	}
}

func TestHasNegationBefore(t *testing.T) {
	tokens := strings.Fields("i really do not want to hurt myself")

	if !HasNegationBefore(tokens, 6, 3) {
		t.Error("expected negation within window 3 of 'hurt'")
	}
	if HasNegationBefore(tokens, 6, 2) {
		t.Error("window 2 should not reach the negation")
	}
	if HasNegationBefore(tokens, 0, 3) {
		t.Error("first token has nothing before it")
	}
}

func BenchmarkScan(b *testing.B) {
	s := newTestScanner()
	text := "had a rough day, feeling anxious and overwhelmed but keeping it together"
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s.Scan(text, domain.SourceCheckIn)
	}
}
