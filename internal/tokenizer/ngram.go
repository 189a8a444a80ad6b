package tokenizer

import (
	"fmt"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
)

// NGram emits character n-grams for every word in the document. Words shorter
// than the n-gram size are emitted whole. Terms are prefixed with the n-gram
// size so they never collide with word terms when combined under a composite
// tokenizer.
type NGram struct {
	mapping
	n int
}

func newNGram(cfg config.TokenizerConfig) (Tokenizer, error) {
	if cfg.NGramSize < 2 {
		return nil, fmt.Errorf("ngram tokenizer requires ngramSize >= 2, got %d", cfg.NGramSize)
	}
	return &NGram{n: cfg.NGramSize}, nil
}

// Tokenize emits n-gram terms for doc.Text and merges them into the
// document's frequency table.
func (t *NGram) Tokenize(doc *index.Document, counter *index.TermCounter) error {
	words := splitWords(doc.Text)
	prefix := fmt.Sprintf("%dg:", t.n)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		runes := []rune(word)
		if len(runes) <= t.n {
			terms = append(terms, prefix+word)
			continue
		}
		for i := 0; i+t.n <= len(runes); i++ {
			terms = append(terms, prefix+string(runes[i:i+t.n]))
		}
	}
	record(doc, terms, t.ids, counter)
	return nil
}
