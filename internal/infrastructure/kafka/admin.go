package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopics creates any missing topic with one partition and replication
// factor one. Existing topics are left as they are.
func EnsureTopics(ctx context.Context, brokerURLs []string, topics []string, logger *zap.Logger) error {
	if len(brokerURLs) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		topicConfigs = append(topicConfigs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	if len(topicConfigs) == 0 {
		return nil
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			logger.Info("Kafka topics already exist, skipping creation", zap.Strings("topics", topics))
			return nil
		}
		return fmt.Errorf("failed to create kafka topics: %w", err)
	}
	logger.Info("Kafka topics ensured", zap.Strings("topics", topics))
	return nil
}
