// Package scorer implements the BM25 probabilistic relevance model.
package scorer

import (
	"math"

	"github.com/searchforge/diskindex/pkg/config"
)

// BM25 computes per-term contributions to a document's relevance score. The
// constants are tunable but not structural; the defaults are k1=1.5, b=0.75,
// k3=500.
type BM25 struct {
	k1 float64
	b  float64
	k3 float64
}

// New returns a scorer with the given constants.
func New(cfg config.BM25Config) *BM25 {
	return &BM25{k1: cfg.K1, b: cfg.B, k3: cfg.K3}
}

// IDF is the inverse document frequency for a term with document frequency
// df over numDocs total documents. It goes negative for terms present in
// more than half the corpus; contributions are never clamped.
func (s *BM25) IDF(numDocs, df float64) float64 {
	return math.Log((numDocs - df + 0.5) / (df + 0.5))
}

// TF is the length-normalised, saturating within-document term frequency
// component.
func (s *BM25) TF(freq, docLen, avgDocLen float64) float64 {
	return ((s.k1 + 1.0) * freq) / ((s.k1 * ((1.0 - s.b) + s.b*docLen/avgDocLen)) + freq)
}

// QTF is the query-term-frequency saturation component.
func (s *BM25) QTF(queryFreq float64) float64 {
	return ((s.k3 + 1.0) * queryFreq) / (s.k3 + queryFreq)
}

// Contribution is one (query term, document) pair's additive score.
func (s *BM25) Contribution(freq, docLen, avgDocLen, queryFreq, df, numDocs float64) float64 {
	return s.TF(freq, docLen, avgDocLen) * s.IDF(numDocs, df) * s.QTF(queryFreq)
}
