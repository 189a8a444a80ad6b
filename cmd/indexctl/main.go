// Command indexctl builds an index from a configured corpus source. The build
// is one-shot: it refuses to run over an existing index, and a failed run
// leaves no visible index behind.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchforge/diskindex/internal/invindex"
	"github.com/searchforge/diskindex/internal/postings"
	"github.com/searchforge/diskindex/internal/search"
	"github.com/searchforge/diskindex/internal/source"
	"github.com/searchforge/diskindex/internal/tokenizer"
	"github.com/searchforge/diskindex/pkg/config"
	pkgkafka "github.com/searchforge/diskindex/pkg/kafka"
	"github.com/searchforge/diskindex/pkg/logger"
	"github.com/searchforge/diskindex/pkg/metrics"
	"github.com/searchforge/diskindex/pkg/postgres"
	pkgredis "github.com/searchforge/diskindex/pkg/redis"
	"github.com/searchforge/diskindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	announce := flag.Bool("announce", false, "publish a build-completion event to Kafka")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("indexctl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
	}

	tok, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		log.Error("creating tokenizer", "error", err)
		os.Exit(1)
	}

	src, cleanup, err := openSource(ctx, cfg)
	if err != nil {
		log.Error("opening corpus source", "type", cfg.Source.Type, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ix, err := invindex.Open(cfg.Index.Dir, tok, cfg.BM25)
	if err != nil {
		log.Error("opening index location", "dir", cfg.Index.Dir, "error", err)
		os.Exit(1)
	}
	defer ix.Close()

	log.Info("starting build",
		"dir", cfg.Index.Dir,
		"source", cfg.Source.Type,
		"workers", cfg.Index.BuildWorkers,
		"chunk_budget_mb", cfg.Index.ChunkBudgetMB,
	)
	stats, err := ix.Build(ctx, src, postings.BuildOptions{
		MemoryBudgetBytes: cfg.Index.ChunkBudgetBytes(),
		Workers:           cfg.Index.BuildWorkers,
		QueueLen:          cfg.Index.SourceQueueLen,
	})
	if err != nil {
		log.Error("build failed", "error", err)
		os.Exit(1)
	}

	m.DocsIndexedTotal.Add(float64(stats.Docs))
	m.ChunksFlushedTotal.Add(float64(stats.Chunks))
	m.TermsIndexed.Set(float64(stats.Terms))
	m.BuildDuration.WithLabelValues("total").Observe(stats.Duration.Seconds())

	log.Info("build complete",
		"docs", stats.Docs,
		"terms", stats.Terms,
		"chunks", stats.Chunks,
		"duration", stats.Duration,
	)

	if cfg.Redis.Enabled {
		invalidateCache(ctx, cfg, log)
	}
	if *announce {
		announceCompletion(ctx, cfg, stats, log)
	}
}

// openSource selects the corpus source by config. Postgres connections retry
// with backoff before the build starts; once the build is running nothing is
// retried.
func openSource(ctx context.Context, cfg *config.Config) (postings.DocumentSource, func(), error) {
	switch cfg.Source.Type {
	case "dir":
		s, err := source.NewDirSource(cfg.Source)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			var connErr error
			client, connErr = postgres.New(cfg.Postgres)
			return connErr
		})
		if err != nil {
			return nil, nil, err
		}
		s, err := source.NewPostgresSource(ctx, client, cfg.Source.Table)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return s, func() { s.Close(); client.Close() }, nil
	case "kafka":
		s := source.NewKafkaSource(cfg.Kafka)
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// invalidateCache drops ranked results cached against any previous index at
// this Redis instance.
func invalidateCache(ctx context.Context, cfg *config.Config, log *slog.Logger) {
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unreachable, skipping cache invalidation", "error", err)
		return
	}
	defer client.Close()
	cache := search.NewQueryCache(client, cfg.Redis)
	if err := cache.Invalidate(ctx); err != nil {
		log.Warn("cache invalidation failed", "error", err)
	}
}

// completionEvent is the payload published to the index-complete topic.
type completionEvent struct {
	IndexDir   string    `json:"index_dir"`
	Docs       int       `json:"docs"`
	Terms      int       `json:"terms"`
	Chunks     int       `json:"chunks"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

func announceCompletion(ctx context.Context, cfg *config.Config, stats *invindex.BuildStats, log *slog.Logger) {
	producer := pkgkafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()
	event := pkgkafka.Event{
		Key: cfg.Index.Dir,
		Value: completionEvent{
			IndexDir:   cfg.Index.Dir,
			Docs:       stats.Docs,
			Terms:      stats.Terms,
			Chunks:     stats.Chunks,
			DurationMS: stats.Duration.Milliseconds(),
			FinishedAt: time.Now().UTC(),
		},
	}
	if err := producer.Publish(ctx, event); err != nil {
		log.Warn("publishing completion event failed", "error", err)
		return
	}
	log.Info("completion event published", "topic", cfg.Kafka.Topics.IndexComplete)
}
