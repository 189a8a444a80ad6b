// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Index, BM25, Tokenizer, Source, Postgres, Kafka, Redis,
// Search, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	BM25      BM25Config      `yaml:"bm25"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Source    SourceConfig    `yaml:"source"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexConfig controls where the index lives and how the build phase spends
// memory.
type IndexConfig struct {
	Dir            string `yaml:"dir"`
	ChunkBudgetMB  int    `yaml:"chunkBudgetMB"`
	BuildWorkers   int    `yaml:"buildWorkers"`
	SourceQueueLen int    `yaml:"sourceQueueLen"`
}

// ChunkBudgetBytes returns the chunk accumulator budget in bytes.
func (c IndexConfig) ChunkBudgetBytes() int64 {
	return int64(c.ChunkBudgetMB) * 1024 * 1024
}

// BM25Config holds the scorer constants. The defaults are the classic
// k1=1.5, b=0.75, k3=500.
type BM25Config struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
	K3 float64 `yaml:"k3"`
}

// TokenizerConfig selects and parameterises a tokenization strategy. Kind is
// one of "word", "ngram", or "multi"; Multi lists the child strategies a
// composite tokenizer runs in sequence.
type TokenizerConfig struct {
	Kind           string            `yaml:"kind"`
	MinTokenLength int               `yaml:"minTokenLength"`
	StripStopwords bool              `yaml:"stripStopwords"`
	Stem           bool              `yaml:"stem"`
	NGramSize      int               `yaml:"ngramSize"`
	Multi          []TokenizerConfig `yaml:"multi"`
}

// SourceConfig selects the corpus source for the build phase. Type is one of
// "dir", "postgres", or "kafka".
type SourceConfig struct {
	Type       string   `yaml:"type"`
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	Table      string   `yaml:"table"`
}

// PostgresConfig holds PostgreSQL connection parameters for the corpus
// source.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for the corpus drain
// source and the build-completion event.
type KafkaConfig struct {
	Brokers   []string    `yaml:"brokers"`
	Partition int         `yaml:"partition"`
	Topics    KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentCorpus string `yaml:"documentCorpus"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SearchConfig controls the search service's HTTP surface.
type SearchConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local use.
func defaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Dir:            "data/index",
			ChunkBudgetMB:  32,
			BuildWorkers:   4,
			SourceQueueLen: 256,
		},
		BM25: BM25Config{
			K1: 1.5,
			B:  0.75,
			K3: 500,
		},
		Tokenizer: TokenizerConfig{
			Kind:           "word",
			MinTokenLength: 1,
		},
		Source: SourceConfig{
			Type:       "dir",
			Root:       "data/corpus",
			Extensions: []string{".txt", ".md"},
			Table:      "documents",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "diskindex",
			User:            "diskindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:   []string{"localhost:9092"},
			Partition: 0,
			Topics: KafkaTopics{
				DocumentCorpus: "document-corpus",
				IndexComplete:  "index-complete",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Search: SearchConfig{
			Port:            8080,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DI_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("DI_INDEX_CHUNK_BUDGET_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			cfg.Index.ChunkBudgetMB = mb
		}
	}
	if v := os.Getenv("DI_INDEX_BUILD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BuildWorkers = n
		}
	}
	if v := os.Getenv("DI_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("DI_SOURCE_ROOT"); v != "" {
		cfg.Source.Root = v
	}
	if v := os.Getenv("DI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("DI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DI_SEARCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Search.Port = port
		}
	}
	if v := os.Getenv("DI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
