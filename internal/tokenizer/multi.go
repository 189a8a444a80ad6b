package tokenizer

import (
	"fmt"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
)

// Multi is the composite strategy: it runs a sequence of child tokenizers
// over the same document and merges their effects. All children share the
// parent's TermID mapping so the combined term space stays dense.
type Multi struct {
	mapping
	children []Tokenizer
}

func newMulti(cfg config.TokenizerConfig) (Tokenizer, error) {
	if len(cfg.Multi) == 0 {
		return nil, fmt.Errorf("multi tokenizer requires at least one child strategy")
	}
	children := make([]Tokenizer, 0, len(cfg.Multi))
	for i, childCfg := range cfg.Multi {
		kind, err := ParseKind(childCfg.Kind)
		if err != nil {
			return nil, fmt.Errorf("multi child %d: %w", i, err)
		}
		if kind == KindMulti {
			return nil, fmt.Errorf("multi child %d: nesting multi tokenizers is not supported", i)
		}
		child, err := constructors[kind](childCfg)
		if err != nil {
			return nil, fmt.Errorf("multi child %d: %w", i, err)
		}
		children = append(children, child)
	}
	return &Multi{children: children}, nil
}

// AttachTermIDMapping shares the mapping with every child.
func (t *Multi) AttachTermIDMapping(ids *index.IDAllocator) {
	t.mapping.AttachTermIDMapping(ids)
	for _, child := range t.children {
		child.AttachTermIDMapping(ids)
	}
}

// Tokenize runs each child in sequence. Children accumulate into the same
// frequency table and token count.
func (t *Multi) Tokenize(doc *index.Document, counter *index.TermCounter) error {
	for i, child := range t.children {
		if err := child.Tokenize(doc, counter); err != nil {
			return fmt.Errorf("multi child %d: %w", i, err)
		}
	}
	return nil
}
