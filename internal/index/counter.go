package index

import "sync"

// TermCounter aggregates document-frequency counts across tokenize calls. A
// tokenizer increments each term once per document it appears in, so the
// stored value is the number of documents seen containing that term. Safe for
// concurrent use by parallel build workers.
type TermCounter struct {
	mu     sync.Mutex
	counts map[TermID]uint32
}

// NewTermCounter returns an empty counter.
func NewTermCounter() *TermCounter {
	return &TermCounter{counts: make(map[TermID]uint32)}
}

// Observe bumps the count for every term in freqs by one.
func (c *TermCounter) Observe(freqs map[TermID]uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range freqs {
		c.counts[id]++
	}
}

// Count returns the aggregate count for id.
func (c *TermCounter) Count(id TermID) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

// Len returns the number of distinct terms observed.
func (c *TermCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}
