package kafka_infra

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer interface {
	Produce(ctx context.Context, key string, value []byte) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaProducer struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewProducer returns a synchronous producer for topic. Produce returns only
// after every in-sync replica acknowledged the write.
func NewProducer(brokerURLs []string, topic string, logger *zap.Logger) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerURLs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	return newProducer(writer, topic, writer.WriteTimeout, logger)
}

func newProducer(w messageWriter, topic string, timeout time.Duration, logger *zap.Logger) *kafkaProducer {
	return &kafkaProducer{writer: w, topic: topic, timeout: timeout, logger: logger}
}

func (p *kafkaProducer) Produce(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	produceCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(produceCtx, msg); err != nil {
		p.logger.Error("Failed to produce message to Kafka",
			zap.String("topic", p.topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to produce message to %s: %w", p.topic, err)
	}
	p.logger.Debug("Message produced to Kafka",
		zap.String("topic", p.topic),
		zap.String("key", key),
	)
	return nil
}

func (p *kafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed", zap.String("topic", p.topic))
	return nil
}
