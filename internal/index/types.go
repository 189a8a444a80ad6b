// Package index defines the core identifier types and data carriers shared by
// the lexicon, postings store, tokenizers, and query scorer.
package index

// TermID is a dense integer surrogate key for a term string, assigned on first
// encounter and stable for the lifetime of one index build.
type TermID uint32

// DocID is a dense integer surrogate key for a document, assigned at build time.
type DocID uint32

// Document carries a unit of indexable content. Name and Category are supplied
// by the corpus source; ID is assigned by the build phase; Frequencies and
// Length are filled in by tokenization.
type Document struct {
	ID          DocID
	Name        string
	Category    string
	Text        string
	Frequencies map[TermID]uint32
	Length      uint32
}

// Posting records one document's within-document frequency for a term.
type Posting struct {
	DocID     DocID  `json:"d"`
	Frequency uint32 `json:"f"`
}

// PostingList is a term's postings, ordered by ascending DocID. DocIDs within
// one list are unique.
type PostingList []Posting

// TermStats is the lexicon's per-term record: how many distinct documents
// contain the term, and where its postings run lives in the postings file.
type TermStats struct {
	DocFrequency uint32 `json:"df"`
	Offset       int64  `json:"o"`
	Count        uint32 `json:"n"`
}

// CorpusStats holds the corpus-wide aggregates needed by the scorer.
type CorpusStats struct {
	NumDocs      uint32  `json:"num_docs"`
	TotalTokens  uint64  `json:"total_tokens"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// DocMeta is the persisted per-document metadata, addressable by DocID.
type DocMeta struct {
	Name     string
	Category string
}
