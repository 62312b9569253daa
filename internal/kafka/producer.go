package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-activity/internal/logger"
)

// Producer publishes JSON encoded domain events. The topic is chosen per
// message, so one writer serves every topic.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish marshals value and writes it under key to topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.Logger.LogKafka("publish", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// Discard drops every event. It stands in for the producer when Kafka is
// disabled.
type Discard struct{}

func (Discard) Publish(context.Context, string, string, interface{}) error { return nil }
