package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/invindex"
	"github.com/searchforge/diskindex/internal/postings"
	"github.com/searchforge/diskindex/internal/tokenizer"
	"github.com/searchforge/diskindex/pkg/config"
	"github.com/searchforge/diskindex/pkg/metrics"
)

// Prometheus collectors register globally, so the test binary creates them
// exactly once.
var testMetrics = metrics.New()

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

func builtIndex(t *testing.T) *invindex.InvertedIndex {
	t.Helper()
	tok, err := tokenizer.New(config.TokenizerConfig{Kind: "word"})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	ix, err := invindex.Open(t.TempDir(), tok, config.BM25Config{K1: 1.5, B: 0.75, K3: 500})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Query terms appear in a minority of documents so their IDF is positive
	// and best-first order matches intuition.
	src := &sliceSource{docs: []*index.Document{
		{Name: "d0", Category: "c", Text: "apple banana"},
		{Name: "d1", Category: "c", Text: "apple apple"},
		{Name: "d2", Category: "c", Text: "banana cherry"},
		{Name: "d3", Category: "c", Text: "cherry durian"},
		{Name: "d4", Category: "c", Text: "durian elderberry"},
	}}
	if _, err := ix.Build(context.Background(), src, postings.BuildOptions{
		MemoryBudgetBytes: 1 << 20,
		Workers:           1,
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestHandlerRequiresQuery(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("error body is empty")
	}
}

func TestHandlerRejectsBadLimit(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=apple&limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerRejectsNonGet(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodPost, "/search?q=apple", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandlerReturnsBestFirst(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=apple", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("Total = %d, want 2", resp.Total)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Fatalf("results not best-first at %d: %v then %v", i, resp.Results[i-1].Score, resp.Results[i].Score)
		}
	}
	// "apple apple" is the stronger match.
	if resp.Results[0].Name != "d1" {
		t.Fatalf("top result = %q, want d1", resp.Results[0].Name)
	}
}

func TestHandlerHonorsLimit(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=apple+banana&limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	if resp.Total != 3 {
		t.Fatalf("Total = %d, want 3 (limit caps the response, not the scoring)", resp.Total)
	}
}

func TestHandlerZeroResults(t *testing.T) {
	h := NewHandler(builtIndex(t), nil, testMetrics)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=zebra", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 0 || len(resp.Results) != 0 {
		t.Fatalf("expected empty result set, got %+v", resp)
	}
}

func TestNormalizeQuery(t *testing.T) {
	if normalizeQuery("Banana  apple") != normalizeQuery("apple banana") {
		t.Fatal("reordered queries must normalise identically")
	}
	if normalizeQuery("apple") == normalizeQuery("banana") {
		t.Fatal("distinct queries must not collide")
	}
}
