package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/oldiberezkoo/0xLider/utils"
)

const (
	// fuzzyMinRunes is the length a token must exceed to take part in fuzzy matching.
	fuzzyMinRunes = 4
	// fuzzyMaxDistance is the highest accepted edit distance relative to the longer string.
	fuzzyMaxDistance = 0.3
)

// tokenRegexp splits normalized text into words. Letters of any script,
// digits, apostrophes and hyphens belong to a word.
var tokenRegexp = regexp.MustCompile(`[\p{L}\p{N}_'-]+`)

// Normalize lowercases text with Russian casing rules and folds ё into е.
func Normalize(text string) string {
	lower := cases.Lower(language.Russian).String(text)
	return strings.ReplaceAll(lower, "ё", "е")
}

// Tokenize returns the words of normalized text in order.
func Tokenize(normalized string) []string {
	return tokenRegexp.FindAllString(normalized, -1)
}

type keywordEntry struct {
	text      string
	whole     *regexp.Regexp
	multiword bool
	runes     int
}

// KeywordIndex is the normalized, precompiled form of a keyword set.
// It is immutable and safe for concurrent use.
type KeywordIndex struct {
	entries []keywordEntry
}

// NewKeywordIndex normalizes and compiles keywords once. Duplicates after
// normalization are dropped, keeping the first occurrence.
func NewKeywordIndex(keywords []string) *KeywordIndex {
	idx := &KeywordIndex{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		norm := strings.TrimSpace(Normalize(kw))
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}

		// Go's \b only knows ASCII word characters, so boundaries are spelled out.
		pattern := `(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(norm) + `(?:$|[^\p{L}\p{N}_])`
		idx.entries = append(idx.entries, keywordEntry{
			text:      norm,
			whole:     regexp.MustCompile(pattern),
			multiword: strings.ContainsRune(norm, ' '),
			runes:     utf8.RuneCountInString(norm),
		})
	}
	return idx
}

// Len returns the number of distinct normalized keywords.
func (idx *KeywordIndex) Len() int { return len(idx.entries) }

// Keywords returns the normalized keywords in index order.
func (idx *KeywordIndex) Keywords() []string {
	out := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.text
	}
	return out
}

func (idx *KeywordIndex) exact(text string) []string {
	var matches []string
	for _, e := range idx.entries {
		if e.whole.MatchString(text) {
			matches = append(matches, e.text)
		}
	}
	return matches
}

func (idx *KeywordIndex) loose(text string, tokens []string) []string {
	words := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		words[tok] = struct{}{}
	}

	var matches []string
	for _, e := range idx.entries {
		if e.multiword {
			if strings.Contains(text, e.text) {
				matches = append(matches, e.text)
			}
			continue
		}
		if _, ok := words[e.text]; ok {
			matches = append(matches, e.text)
		}
	}
	return matches
}

func (idx *KeywordIndex) fuzzy(tokens []string) []string {
	var matches []string
	for _, tok := range tokens {
		tokRunes := utf8.RuneCountInString(tok)
		if tokRunes <= fuzzyMinRunes {
			continue
		}
		if best, ok := idx.closest(tok, tokRunes); ok {
			matches = append(matches, best)
		}
	}
	return matches
}

// closest returns the keyword with the smallest relative edit distance to
// tok, provided it is within fuzzyMaxDistance. Ties go to the earlier keyword.
func (idx *KeywordIndex) closest(tok string, tokRunes int) (string, bool) {
	bestScore := fuzzyMaxDistance
	best := -1
	for i, e := range idx.entries {
		longer := max(tokRunes, e.runes)
		// The length difference alone is a lower bound on the distance.
		if float64(abs(tokRunes-e.runes))/float64(longer) > bestScore {
			continue
		}
		score := float64(levenshtein.ComputeDistance(tok, e.text)) / float64(longer)
		if score < bestScore || (score == bestScore && best == -1) {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return idx.entries[best].text, true
}

// Classification is the keyword verdict for one text.
type Classification struct {
	Contains bool
	Matches  []string
}

// Classifier decides whether listing text mentions any configured keyword.
type Classifier struct {
	index  *KeywordIndex
	logger *utils.Logger
}

// NewClassifier builds the keyword index once for all later calls.
func NewClassifier(keywords []string, logger *utils.Logger) *Classifier {
	return &Classifier{index: NewKeywordIndex(keywords), logger: logger}
}

// Index returns the precomputed keyword index.
func (c *Classifier) Index() *KeywordIndex { return c.index }

// Classify runs the exact, loose and fuzzy tiers in order and returns the
// matches of the first tier that finds any.
func (c *Classifier) Classify(text string) Classification {
	if strings.TrimSpace(text) == "" {
		return Classification{Matches: []string{}}
	}

	normalized := Normalize(text)
	tier := "exact"
	matches := c.index.exact(normalized)
	if len(matches) == 0 {
		tokens := Tokenize(normalized)
		tier = "loose"
		matches = c.index.loose(normalized, tokens)
		if len(matches) == 0 && len(tokens) > 0 {
			tier = "fuzzy"
			matches = c.index.fuzzy(tokens)
		}
	}

	matches = uniqueStrings(matches)
	if len(matches) > 0 && c.logger != nil {
		c.logger.Debug("[classifier] %s tier matched %v", tier, matches)
	}
	return Classification{Contains: len(matches) > 0, Matches: matches}
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
