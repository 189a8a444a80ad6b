package tokenizer

import (
	"strings"
	"unicode"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Word lower-cases input, splits on non-alphanumeric boundaries, and
// optionally removes stop-words and applies a suffix-based stemmer.
type Word struct {
	mapping
	minLen    int
	stripStop bool
	stem      bool
}

func newWord(cfg config.TokenizerConfig) (Tokenizer, error) {
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = 1
	}
	return &Word{
		minLen:    minLen,
		stripStop: cfg.StripStopwords,
		stem:      cfg.Stem,
	}, nil
}

// Tokenize splits doc.Text into normalised word terms and merges them into
// the document's frequency table.
func (t *Word) Tokenize(doc *index.Document, counter *index.TermCounter) error {
	words := splitWords(doc.Text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < t.minLen {
			continue
		}
		if t.stripStop {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if t.stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		terms = append(terms, word)
	}
	record(doc, terms, t.ids, counter)
	return nil
}

// splitWords lower-cases text and splits it on non-letter, non-digit runes.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
