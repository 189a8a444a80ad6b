package search

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/internal/invindex"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
	"github.com/searchforge/diskindex/pkg/metrics"
)

const defaultLimit = 10

// Handler serves ranked queries over a built index.
type Handler struct {
	ix      *invindex.InvertedIndex
	cache   *QueryCache // nil when caching is disabled
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler wires the index, optional cache, and metrics into an HTTP
// handler.
func NewHandler(ix *invindex.InvertedIndex, cache *QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		ix:      ix,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// SearchResponse is the wire shape of a ranked query.
type SearchResponse struct {
	Query   string               `json:"query"`
	Total   int                  `json:"total"`
	Results []invindex.ScoredDoc `json:"results"`
	Cached  bool                 `json:"cached"`
	TookMS  float64              `json:"took_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Search handles GET /search?q=...&limit=N. Results are returned best-first;
// limit caps the response, not the scoring.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusMethodNotAllowed, "only GET is supported"))
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
			h.writeError(w, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "invalid limit %q", raw))
			return
		}
		limit = n
	}

	start := time.Now()
	results, cached, err := h.execute(r, query)
	elapsed := time.Since(start)

	cacheStatus := "none"
	if h.cache != nil {
		cacheStatus = "miss"
		if cached {
			cacheStatus = "hit"
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())

	if err != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.logger.Error("search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	outcome := "scored"
	if len(results) == 0 {
		outcome = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	h.metrics.SearchResultsCount.Observe(float64(len(results)))

	resp := SearchResponse{
		Query:   query,
		Total:   len(results),
		Results: bestFirst(results, limit),
		Cached:  cached,
		TookMS:  float64(elapsed.Microseconds()) / 1000.0,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) execute(r *http.Request, query string) (invindex.Results, bool, error) {
	ctx := r.Context()
	run := func() (invindex.Results, error) {
		doc := &index.Document{Name: "query", Text: query}
		return h.ix.Search(ctx, doc)
	}
	if h.cache == nil {
		results, err := run()
		return results, false, err
	}
	return h.cache.GetOrCompute(ctx, query, run)
}

// bestFirst reverses the ascending ranked set into response order and caps
// it at limit.
func bestFirst(results invindex.Results, limit int) []invindex.ScoredDoc {
	n := len(results)
	if limit > n {
		limit = n
	}
	out := make([]invindex.ScoredDoc, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, results[i])
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, pkgerrors.HTTPStatusCode(err), errorResponse{Error: err.Error()})
}
