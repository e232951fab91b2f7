package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bank-reconciliation/internal/config"
	"github.com/segmentio/kafka-go"
)

type MatchReqMessageProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// Creates a new match request producer and ensures topic exists
func NewMatchReqMessageProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*MatchReqMessageProducer, error) {
	if cfg.MatchRequestTopic == "" {
		return nil, fmt.Errorf("kafka match request topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for match request producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.MatchRequestTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure match request topic %s exists: %w", cfg.MatchRequestTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.MatchRequestTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Using async for high throughput
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages asynchronously", "topic", cfg.MatchRequestTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote messages asynchronously", "topic", cfg.MatchRequestTopic, "count", len(messages))
			}
		},
	}

	return &MatchReqMessageProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.MatchRequestTopic,
	}, nil
}

func (p *MatchReqMessageProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for match request producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish match request",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via match request producer: %w", p.topic, err)
	}

	p.logger.Debug("Published match request",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *MatchReqMessageProducer) Close() error {
	p.logger.Info("Closing match request Kafka message producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close match request kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
