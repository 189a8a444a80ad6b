package postings

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/lexicon"
	"github.com/searchforge/diskindex/internal/tokenizer"
)

// DocumentSource is the bounded document stream the build consumes. Next
// returns io.EOF when the corpus is exhausted.
type DocumentSource interface {
	Next(ctx context.Context) (*index.Document, error)
}

// BuildOptions tunes the chunk-build phase.
type BuildOptions struct {
	// MemoryBudgetBytes is the per-worker accumulator size that triggers a
	// chunk spill.
	MemoryBudgetBytes int64
	// Workers is the number of parallel tokenize/accumulate goroutines.
	Workers int
	// QueueLen bounds the document channel between the source pump and the
	// workers.
	QueueLen int
}

// Builder runs the chunked build phase for one index directory. It owns the
// DocID allocation and the document metadata and length tables gathered
// while tokenizing.
type Builder struct {
	dir     string
	tok     tokenizer.Tokenizer
	counter *index.TermCounter
	logger  *slog.Logger

	mu      sync.Mutex
	docs    map[index.DocID]index.DocMeta
	lengths map[index.DocID]uint32
	nextDoc index.DocID

	chunkSeq atomic.Int64
}

// NewBuilder creates a Builder writing chunks into dir.
func NewBuilder(dir string, tok tokenizer.Tokenizer) *Builder {
	return &Builder{
		dir:     dir,
		tok:     tok,
		counter: index.NewTermCounter(),
		logger:  slog.Default().With("component", "postings-builder"),
		docs:    make(map[index.DocID]index.DocMeta),
		lengths: make(map[index.DocID]uint32),
	}
}

// BuildChunks drains the source through the tokenizer and spills chunk files
// whenever a worker's accumulator crosses the memory budget, flushing any
// remainder after the last document. It returns the number of chunks
// written. Any disk failure aborts the whole build; nothing is retried.
func (b *Builder) BuildChunks(ctx context.Context, src DocumentSource, opts BuildOptions) (int, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	queueLen := opts.QueueLen
	if queueLen < 1 {
		queueLen = 64
	}
	budget := opts.MemoryBudgetBytes
	if budget < 1 {
		budget = 1
	}

	docCh := make(chan *index.Document, queueLen)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(docCh)
		for {
			doc, err := src.Next(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading corpus source: %w", err)
			}
			select {
			case docCh <- doc:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			acc := newAccumulator()
			for doc := range docCh {
				if err := b.tok.Tokenize(doc, b.counter); err != nil {
					return fmt.Errorf("tokenizing %q: %w", doc.Name, err)
				}
				docID := b.registerDoc(doc)
				acc.add(docID, doc.Frequencies)
				if acc.size >= budget {
					if err := b.flush(acc); err != nil {
						return err
					}
				}
			}
			if !acc.empty() {
				return b.flush(acc)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	n := int(b.chunkSeq.Load())
	b.logger.Info("chunk build complete",
		"docs", len(b.docs),
		"chunks", n,
		"terms_seen", b.counter.Len(),
	)
	return n, nil
}

// registerDoc assigns the next dense DocID and records the document's
// metadata and token count.
func (b *Builder) registerDoc(doc *index.Document) index.DocID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextDoc
	b.nextDoc++
	doc.ID = id
	b.docs[id] = index.DocMeta{Name: doc.Name, Category: doc.Category}
	b.lengths[id] = doc.Length
	return id
}

// flush spills the accumulator to the next numbered chunk file and resets it.
func (b *Builder) flush(acc *accumulator) error {
	n := b.chunkSeq.Add(1) - 1
	path := chunkPath(b.dir, int(n))
	if err := writeChunk(acc, path); err != nil {
		return err
	}
	b.logger.Debug("chunk flushed",
		"chunk", n,
		"terms", len(acc.postings),
		"bytes_estimate", acc.size,
	)
	acc.reset()
	return nil
}

// DocCount returns the number of documents registered so far.
func (b *Builder) DocCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// Documents returns the registered document metadata table.
func (b *Builder) Documents() map[index.DocID]index.DocMeta {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.docs
}

// DocLengths returns the registered doc-length table.
func (b *Builder) DocLengths() map[index.DocID]uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lengths
}

// SaveDocIDMapping persists the document↔DocID table.
func (b *Builder) SaveDocIDMapping() error {
	return lexicon.SaveDocIDMapping(b.Documents(), filepath.Join(b.dir, lexicon.DocIDMappingFile))
}

// SaveDocLengths persists the DocID→token-count table required at query time.
func (b *Builder) SaveDocLengths() error {
	return lexicon.SaveDocLengths(b.DocLengths(), filepath.Join(b.dir, lexicon.DocLengthsFile))
}
