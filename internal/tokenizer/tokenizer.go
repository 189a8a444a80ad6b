// Package tokenizer turns raw document text into the term→frequency table the
// index consumes. Strategies form a closed set of kinds selected by
// configuration; each one shares the same TermID mapping contract so a later
// process can attach to an existing index and reuse its identifiers.
package tokenizer

import (
	"fmt"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
)

// Kind identifies a tokenization strategy.
type Kind int

const (
	// KindWord splits on non-alphanumeric boundaries with optional
	// stop-word removal and stemming.
	KindWord Kind = iota
	// KindNGram emits character n-grams per word.
	KindNGram
	// KindMulti runs a sequence of other tokenizers over the same document
	// and merges their effects.
	KindMulti
)

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "word":
		return KindWord, nil
	case "ngram":
		return KindNGram, nil
	case "multi":
		return KindMulti, nil
	default:
		return 0, fmt.Errorf("unknown tokenizer kind %q", s)
	}
}

// Tokenizer is the contract between tokenization strategies and the index
// core. Tokenize mutates the document's term→frequency table and token count,
// and optionally bumps an aggregate document-frequency counter. The TermID
// mapping can be attached from an existing index or persisted at build
// completion.
type Tokenizer interface {
	Tokenize(doc *index.Document, counter *index.TermCounter) error
	AttachTermIDMapping(m *index.IDAllocator)
	TermIDMapping() *index.IDAllocator
	PersistTermIDMapping(path string) error
}

// constructors is the dispatch table over the closed set of kinds. It is
// populated in init rather than a composite literal because newMulti refers
// back to the table, which would otherwise form an initialization cycle.
var constructors map[Kind]func(cfg config.TokenizerConfig) (Tokenizer, error)

func init() {
	constructors = map[Kind]func(cfg config.TokenizerConfig) (Tokenizer, error){
		KindWord:  newWord,
		KindNGram: newNGram,
		KindMulti: newMulti,
	}
}

// New builds the tokenizer described by cfg with a fresh TermID mapping.
func New(cfg config.TokenizerConfig) (Tokenizer, error) {
	kind, err := ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	tok, err := constructors[kind](cfg)
	if err != nil {
		return nil, err
	}
	tok.AttachTermIDMapping(index.NewIDAllocator())
	return tok, nil
}

// mapping implements the TermID mapping half of the Tokenizer contract and is
// embedded by every strategy.
type mapping struct {
	ids *index.IDAllocator
}

func (m *mapping) AttachTermIDMapping(ids *index.IDAllocator) {
	m.ids = ids
}

func (m *mapping) TermIDMapping() *index.IDAllocator {
	return m.ids
}

func (m *mapping) PersistTermIDMapping(path string) error {
	return m.ids.Save(path)
}

// record merges the terms produced by one tokenize pass into the document and
// observes the optional aggregate counter exactly once per document.
func record(doc *index.Document, terms []string, ids *index.IDAllocator, counter *index.TermCounter) {
	if doc.Frequencies == nil {
		doc.Frequencies = make(map[index.TermID]uint32, len(terms))
	}
	local := make(map[index.TermID]uint32, len(terms))
	for _, term := range terms {
		local[ids.GetOrAssign(term)]++
	}
	for id, freq := range local {
		doc.Frequencies[id] += freq
	}
	doc.Length += uint32(len(terms))
	if counter != nil {
		counter.Observe(local)
	}
}
