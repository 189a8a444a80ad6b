package invindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/lexicon"
	"github.com/searchforge/diskindex/internal/postings"
	"github.com/searchforge/diskindex/internal/tokenizer"
	"github.com/searchforge/diskindex/pkg/config"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
)

type sliceSource struct {
	docs []*index.Document
	pos  int
}

func (s *sliceSource) Next(ctx context.Context) (*index.Document, error) {
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	doc := s.docs[s.pos]
	s.pos++
	return doc, nil
}

func bm25Defaults() config.BM25Config {
	return config.BM25Config{K1: 1.5, B: 0.75, K3: 500}
}

func newWordTokenizer(t *testing.T) tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.New(config.TokenizerConfig{Kind: "word"})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	return tok
}

func sourceFor(texts []string) *sliceSource {
	docs := make([]*index.Document, len(texts))
	for i, text := range texts {
		docs[i] = &index.Document{
			Name:     fmt.Sprintf("doc-%d", i),
			Category: "test",
			Text:     text,
		}
	}
	return &sliceSource{docs: docs}
}

func buildTestIndex(t *testing.T, dir string, texts []string) *InvertedIndex {
	t.Helper()
	ix, err := Open(dir, newWordTokenizer(t), bm25Defaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = ix.Build(context.Background(), sourceFor(texts), postings.BuildOptions{
		MemoryBudgetBytes: 1 << 20,
		Workers:           1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func search(t *testing.T, ix *InvertedIndex, query string) Results {
	t.Helper()
	results, err := ix.Search(context.Background(), &index.Document{Name: "query", Text: query})
	if err != nil {
		t.Fatalf("Search(%q): %v", query, err)
	}
	return results
}

func TestBuildStats(t *testing.T) {
	dir := t.TempDir()
	ix, err := Open(dir, newWordTokenizer(t), bm25Defaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()
	stats, err := ix.Build(context.Background(), sourceFor([]string{"a a b", "a c"}), postings.BuildOptions{
		MemoryBudgetBytes: 1 << 20,
		Workers:           1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Docs != 2 || stats.Terms != 3 || stats.Chunks != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !ix.IsBuilt() {
		t.Fatal("IsBuilt() = false after build")
	}
}

// An everywhere-term has a negative IDF; its contributions are carried
// through without clamping.
func TestSearchNegativeIDFUnclamped(t *testing.T) {
	ix := buildTestIndex(t, t.TempDir(), []string{"a a b", "a c"})
	defer ix.Close()

	results := search(t, ix, "a")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	idf := math.Log((2.0 - 2.0 + 0.5) / (2.0 + 0.5)) // ln(0.2)
	if idf >= 0 {
		t.Fatal("scenario requires negative idf")
	}
	avg := 2.5
	tf := func(freq, docLen float64) float64 {
		return ((1.5 + 1.0) * freq) / ((1.5 * ((1.0 - 0.75) + 0.75*docLen/avg)) + freq)
	}
	wantDoc0 := tf(2, 3) * idf
	wantDoc1 := tf(1, 2) * idf

	byDoc := map[index.DocID]float64{}
	for _, r := range results {
		byDoc[r.DocID] = r.Score
	}
	if got := byDoc[0]; math.Abs(got-wantDoc0) > 1e-12 {
		t.Fatalf("doc 0 score = %v, want %v", got, wantDoc0)
	}
	if got := byDoc[1]; math.Abs(got-wantDoc1) > 1e-12 {
		t.Fatalf("doc 1 score = %v, want %v", got, wantDoc1)
	}
	for _, r := range results {
		if r.Score >= 0 {
			t.Fatalf("doc %d score = %v, want negative", r.DocID, r.Score)
		}
	}
	if results[0].Score > results[1].Score {
		t.Fatalf("results not ascending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestSearchResultMetadata(t *testing.T) {
	ix := buildTestIndex(t, t.TempDir(), []string{"only here"})
	defer ix.Close()
	results := search(t, ix, "only")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "doc-0" || results[0].Category != "test" {
		t.Fatalf("result metadata = %+v", results[0])
	}
}

func TestSearchEqualScoresOrderedByDocID(t *testing.T) {
	ix := buildTestIndex(t, t.TempDir(), []string{"x y", "x y"})
	defer ix.Close()
	results := search(t, ix, "x")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Fatalf("identical documents must score identically: %v vs %v", results[0].Score, results[1].Score)
	}
	if results[0].DocID != 0 || results[1].DocID != 1 {
		t.Fatalf("equal scores must be ordered by DocID: %d then %d", results[0].DocID, results[1].DocID)
	}
}

func TestSearchUnknownTermsReturnEmpty(t *testing.T) {
	ix := buildTestIndex(t, t.TempDir(), []string{"a a b", "a c"})
	defer ix.Close()
	results := search(t, ix, "zebra quagga")
	if len(results) != 0 {
		t.Fatalf("got %d results for out-of-vocabulary query, want 0", len(results))
	}
}

func TestSearchBeforeBuildFails(t *testing.T) {
	ix, err := Open(t.TempDir(), newWordTokenizer(t), bm25Defaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = ix.Search(context.Background(), &index.Document{Name: "query", Text: "a"})
	if !errors.Is(err, pkgerrors.ErrIndexNotBuilt) {
		t.Fatalf("Search = %v, want ErrIndexNotBuilt", err)
	}
}

func TestRebuildFailsAndLeavesArtifactsUntouched(t *testing.T) {
	dir := t.TempDir()
	ix := buildTestIndex(t, dir, []string{"a a b", "a c"})
	defer ix.Close()

	artifacts := []string{
		lexicon.LexiconFile,
		lexicon.PostingsFile,
		lexicon.TermIDMappingFile,
		lexicon.DocIDMappingFile,
		lexicon.DocLengthsFile,
	}
	before := map[string][]byte{}
	for _, name := range artifacts {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		before[name] = data
	}

	_, err := ix.Build(context.Background(), sourceFor([]string{"something else"}), postings.BuildOptions{
		MemoryBudgetBytes: 1 << 20,
		Workers:           1,
	})
	if !errors.Is(err, pkgerrors.ErrIndexExists) {
		t.Fatalf("second Build = %v, want ErrIndexExists", err)
	}

	for _, name := range artifacts {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("re-reading %s: %v", name, err)
		}
		if string(data) != string(before[name]) {
			t.Fatalf("artifact %s changed after refused rebuild", name)
		}
	}
}

func TestReopenReproducesScores(t *testing.T) {
	dir := t.TempDir()
	ix := buildTestIndex(t, dir, []string{"a a b", "a c", "b b c d"})
	first := search(t, ix, "a b c")
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, newWordTokenizer(t), bm25Defaults())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if !reopened.IsBuilt() {
		t.Fatal("reopened index not recognised as built")
	}
	second := search(t, reopened, "a b c")

	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		// Bit-for-bit equality: scoring accumulates in TermID order, so a
		// reopened index reproduces the exact floating-point sums.
		if first[i] != second[i] {
			t.Fatalf("result %d differs after reopen: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestOpenRejectsCorruptLexicon(t *testing.T) {
	dir := t.TempDir()
	ix := buildTestIndex(t, dir, []string{"a a b", "a c"})
	ix.Close()

	path := filepath.Join(dir, lexicon.LexiconFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(dir, newWordTokenizer(t), bm25Defaults())
	if !errors.Is(err, pkgerrors.ErrCorruptIndex) {
		t.Fatalf("Open = %v, want ErrCorruptIndex", err)
	}
}
