// Command searchd serves BM25-ranked queries over a built index. It refuses
// to start if no built index exists at the configured location; the index is
// read-only for the life of the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchforge/diskindex/internal/invindex"
	"github.com/searchforge/diskindex/internal/search"
	"github.com/searchforge/diskindex/internal/tokenizer"
	"github.com/searchforge/diskindex/pkg/config"
	"github.com/searchforge/diskindex/pkg/health"
	"github.com/searchforge/diskindex/pkg/logger"
	"github.com/searchforge/diskindex/pkg/metrics"
	"github.com/searchforge/diskindex/pkg/middleware"
	pkgredis "github.com/searchforge/diskindex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("searchd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	tok, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		log.Error("creating tokenizer", "error", err)
		os.Exit(1)
	}
	ix, err := invindex.Open(cfg.Index.Dir, tok, cfg.BM25)
	if err != nil {
		log.Error("opening index", "dir", cfg.Index.Dir, "error", err)
		os.Exit(1)
	}
	defer ix.Close()
	if !ix.IsBuilt() {
		log.Error("no built index at configured location, run indexctl first", "dir", cfg.Index.Dir)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		corpus := ix.Lexicon().Corpus()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d docs, %d terms", corpus.NumDocs, ix.Lexicon().TermCount()),
		}
	})

	var cache *search.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			log.Error("connecting to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		cache = search.NewQueryCache(redisClient, cfg.Redis)
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				// The cache is an optimisation; a dead Redis degrades
				// latency, not correctness.
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	handler := search.NewHandler(ix, cache, m)
	mux := http.NewServeMux()
	mux.HandleFunc("/search", handler.Search)
	mux.HandleFunc("/healthz/live", checker.LiveHandler())
	mux.HandleFunc("/healthz/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	chain := middleware.Metrics(m)(middleware.Timeout(cfg.Search.RequestTimeout)(mux))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Search.Port),
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("search service listening",
			"addr", server.Addr,
			"index_dir", cfg.Index.Dir,
			"cache_enabled", cfg.Redis.Enabled,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Search.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	}
	log.Info("stopped")
}
