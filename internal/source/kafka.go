package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/searchforge/diskindex/internal/index"
	"github.com/searchforge/diskindex/pkg/config"
	pkgerrors "github.com/searchforge/diskindex/pkg/errors"
	pkgkafka "github.com/searchforge/diskindex/pkg/kafka"
)

// corpusMessage is the JSON payload expected on the corpus topic.
type corpusMessage struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Content  string `json:"content"`
}

// KafkaSource drains a single-partition corpus topic from its first offset
// to the high-water mark observed at stream start, then reports EOF. Build
// consumes a bounded snapshot: messages published mid-build are left for the
// next index generation.
type KafkaSource struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	primed  bool
	drained bool
}

// NewKafkaSource creates a drain reader over the configured corpus topic and
// partition.
func NewKafkaSource(cfg config.KafkaConfig) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topics.DocumentCorpus,
		Partition:   cfg.Partition,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &KafkaSource{
		reader: r,
		logger: slog.Default().With("component", "kafka-source", "topic", cfg.Topics.DocumentCorpus),
	}
}

// Next fetches and decodes the next corpus message, reporting io.EOF once
// the partition's backlog at stream start has been consumed.
func (s *KafkaSource) Next(ctx context.Context) (*index.Document, error) {
	if s.drained {
		return nil, io.EOF
	}
	if !s.primed {
		lag, err := s.reader.ReadLag(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: reading corpus topic lag: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		if lag == 0 {
			s.drained = true
			return nil, io.EOF
		}
		s.logger.Info("draining corpus topic", "backlog", lag)
		s.primed = true
	}

	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading corpus message: %v", pkgerrors.ErrSourceUnavailable, err)
	}
	body, err := pkgkafka.DecodeJSON[corpusMessage](msg.Value)
	if err != nil {
		return nil, fmt.Errorf("corpus message at offset %d: %w", msg.Offset, err)
	}
	if s.reader.Lag() == 0 {
		s.drained = true
	}
	return &index.Document{
		Name:     body.Name,
		Category: body.Category,
		Text:     body.Content,
	}, nil
}

// Close closes the underlying Kafka reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
