// Package invindex ties the lexicon, postings store, tokenizer, and BM25
// scorer together into the index engine's programmatic surface: a one-shot
// Build over a bounded document stream and read-only Search over the result.
package invindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/lexicon"
	"github.com/searchforge/diskindex/internal/postings"
	"github.com/searchforge/diskindex/internal/scorer"
	"github.com/searchforge/diskindex/internal/tokenizer"
	"github.com/searchforge/diskindex/pkg/config"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
	"github.com/searchforge/diskindex/pkg/tracing"
)

// ScoredDoc is one entry of a ranked result set.
type ScoredDoc struct {
	Score    float64     `json:"score"`
	DocID    index.DocID `json:"doc_id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
}

// Results is ordered ascending by score, with ties ordered by ascending
// DocID. Distinct documents with equal scores are all retained. Consumers
// wanting best-first results read from the high end.
type Results []ScoredDoc

// BuildStats summarises a completed build.
type BuildStats struct {
	Docs     int
	Terms    int
	Chunks   int
	Duration time.Duration
}

// InvertedIndex is the engine facade. Once built (or opened over a built
// index) it is immutable and safe for unbounded concurrent Search calls.
type InvertedIndex struct {
	dir    string
	lex    *lexicon.Lexicon
	post   *postings.Reader
	tok    tokenizer.Tokenizer
	bm25   *scorer.BM25
	logger *slog.Logger
}

// Open prepares an index at dir. If a built index exists there, its lexicon,
// postings, and identifier mappings are loaded and the tokenizer is attached
// to the existing TermID space; otherwise the tokenizer keeps its fresh
// mapping and the index is ready to Build.
func Open(dir string, tok tokenizer.Tokenizer, bm25Cfg config.BM25Config) (*InvertedIndex, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	ix := &InvertedIndex{
		dir:    dir,
		lex:    lexicon.New(dir),
		tok:    tok,
		bm25:   scorer.New(bm25Cfg),
		logger: slog.Default().With("component", "inverted-index"),
	}
	if !ix.lex.IsEmpty() {
		if err := ix.load(); err != nil {
			return nil, err
		}
		ix.logger.Info("opened existing index",
			"dir", dir,
			"docs", ix.lex.Corpus().NumDocs,
			"terms", ix.lex.TermCount(),
		)
	}
	return ix, nil
}

func (ix *InvertedIndex) load() error {
	if err := ix.lex.Load(); err != nil {
		return err
	}
	ids, err := index.LoadIDAllocator(filepath.Join(ix.dir, lexicon.TermIDMappingFile))
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrCorruptIndex, err)
	}
	ix.tok.AttachTermIDMapping(ids)
	post, err := postings.OpenReader(filepath.Join(ix.dir, lexicon.PostingsFile))
	if err != nil {
		return err
	}
	ix.post = post
	return nil
}

// IsBuilt reports whether a completed index exists at this location.
func (ix *InvertedIndex) IsBuilt() bool {
	return ix.post != nil
}

// Lexicon exposes the loaded lexicon for read-only inspection.
func (ix *InvertedIndex) Lexicon() *lexicon.Lexicon {
	return ix.lex
}

// Build creates the index from src. It fails if a built index already exists
// at this location, leaving the existing artifacts untouched. Completion is
// gated on the lexicon file, written last: a crash or I/O failure anywhere
// earlier leaves no visible index.
func (ix *InvertedIndex) Build(ctx context.Context, src postings.DocumentSource, opts postings.BuildOptions) (*BuildStats, error) {
	if !ix.lex.IsEmpty() {
		return nil, fmt.Errorf("%w: refusing to build over %s", pkgerrors.ErrIndexExists, ix.dir)
	}

	span := tracing.Start("index-build")
	builder := postings.NewBuilder(ix.dir, ix.tok)

	chunkSpan := span.Child("chunk-build")
	chunks, err := builder.BuildChunks(ctx, src, opts)
	chunkSpan.End()
	if err != nil {
		return nil, fmt.Errorf("building chunks: %w", err)
	}
	chunkSpan.SetAttr("chunks", chunks)

	if err := ix.tok.PersistTermIDMapping(filepath.Join(ix.dir, lexicon.TermIDMappingFile)); err != nil {
		return nil, fmt.Errorf("saving termid mapping: %w", err)
	}
	if err := builder.SaveDocIDMapping(); err != nil {
		return nil, fmt.Errorf("saving docid mapping: %w", err)
	}

	mergeSpan := span.Child("chunk-merge")
	err = builder.MergeChunks(chunks, ix.lex)
	mergeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("merging chunks: %w", err)
	}

	saveSpan := span.Child("artifact-save")
	if err := builder.SaveDocLengths(); err != nil {
		saveSpan.End()
		return nil, fmt.Errorf("saving doc lengths: %w", err)
	}
	ix.lex.SetDocuments(builder.Documents(), builder.DocLengths())
	if err := ix.lex.Save(); err != nil {
		saveSpan.End()
		return nil, fmt.Errorf("saving lexicon: %w", err)
	}
	saveSpan.End()

	post, err := postings.OpenReader(filepath.Join(ix.dir, lexicon.PostingsFile))
	if err != nil {
		return nil, err
	}
	ix.post = post

	span.End()
	span.SetAttr("docs", builder.DocCount())
	span.SetAttr("terms", ix.lex.TermCount())
	span.Log()

	return &BuildStats{
		Docs:     builder.DocCount(),
		Terms:    ix.lex.TermCount(),
		Chunks:   chunks,
		Duration: span.Duration,
	}, nil
}

// Search tokenizes query with the build-time TermID mapping and ranks every
// document containing at least one resolvable query term. Terms absent from
// the lexicon contribute nothing and raise no error; a query with no
// resolvable terms returns an empty result set.
func (ix *InvertedIndex) Search(ctx context.Context, query *index.Document) (Results, error) {
	if !ix.IsBuilt() {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotBuilt, ix.dir)
	}
	if err := ix.tok.Tokenize(query, nil); err != nil {
		return nil, fmt.Errorf("tokenizing query %q: %w", query.Name, err)
	}

	corpus := ix.lex.Corpus()
	numDocs := float64(corpus.NumDocs)
	avgDocLen := corpus.AvgDocLength

	// Accumulate in TermID order so floating-point addition is identical
	// across runs and across reopened instances.
	termIDs := make([]index.TermID, 0, len(query.Frequencies))
	for termID := range query.Frequencies {
		termIDs = append(termIDs, termID)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	scores := make(map[index.DocID]float64)
	for _, termID := range termIDs {
		stats, ok := ix.lex.TermInfo(termID)
		if !ok {
			continue
		}
		list, err := ix.post.Fetch(stats)
		if err != nil {
			return nil, fmt.Errorf("fetching postings for term %d: %w", termID, err)
		}
		queryFreq := float64(query.Frequencies[termID])
		df := float64(stats.DocFrequency)
		for _, p := range list {
			docLen := float64(ix.lex.DocLength(p.DocID))
			scores[p.DocID] += ix.bm25.Contribution(
				float64(p.Frequency), docLen, avgDocLen, queryFreq, df, numDocs,
			)
		}
	}

	results := make(Results, 0, len(scores))
	for docID, score := range scores {
		meta, _ := ix.lex.Doc(docID)
		results = append(results, ScoredDoc{
			Score:    score,
			DocID:    docID,
			Name:     meta.Name,
			Category: meta.Category,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	ix.logger.Debug("query scored",
		"query", query.Name,
		"query_terms", len(termIDs),
		"results", len(results),
	)
	return results, nil
}

// Close releases the postings file handle.
func (ix *InvertedIndex) Close() error {
	if ix.post == nil {
		return nil
	}
	return ix.post.Close()
}
