package kafka_infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Stream is a pull-based subscription to one topic.
type Stream interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber opens Streams.
type Subscriber interface {
	Subscribe(ctx context.Context) (Stream, error)
}

type SubscriberConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset is "earliest" or "latest" and applies only when the group
	// has no committed offset.
	StartOffset string
}

type kafkaSubscriber struct {
	cfg    SubscriberConfig
	logger *zap.Logger
}

func NewSubscriber(cfg SubscriberConfig, logger *zap.Logger) Subscriber {
	return &kafkaSubscriber{cfg: cfg, logger: logger}
}

func startOffset(s string) int64 {
	if strings.EqualFold(strings.TrimSpace(s), "latest") {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// Subscribe checks that the topic is reachable before creating the group
// reader, so a missing broker or topic fails fast instead of retrying forever
// in the background.
func (s *kafkaSubscriber) Subscribe(ctx context.Context) (Stream, error) {
	if len(s.cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", s.cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka broker %s: %w", s.cfg.Brokers[0], err)
	}
	partitions, err := conn.ReadPartitions(s.cfg.Topic)
	_ = conn.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions of topic %s: %w", s.cfg.Topic, err)
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", s.cfg.Topic)
	}

	logger := s.logger
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                s.cfg.Brokers,
		GroupID:                s.cfg.GroupID,
		Topic:                  s.cfg.Topic,
		StartOffset:            startOffset(s.cfg.StartOffset),
		MinBytes:               1,
		MaxBytes:               10e6,
		MaxWait:                time.Second,
		ReadBatchTimeout:       time.Second,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
		HeartbeatInterval:      3 * time.Second,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})

	s.logger.Info("Kafka subscription opened",
		zap.String("topic", s.cfg.Topic),
		zap.String("group_id", s.cfg.GroupID),
		zap.Int("partitions", len(partitions)),
	)
	return reader, nil
}
