// Package queue maps the task-queue abstraction onto kafka: one topic per
// task name, one consumer group per registered handler. Delivery is
// at-least-once; handlers are expected to be idempotent.
package queue

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TaskCacheTicks is the task (and topic) the ticker submits tick batches to
// and the cacher consumes from.
const TaskCacheTicks = "cache_ticks"

// Publisher submits task payloads for asynchronous processing.
type Publisher interface {
	Submit(ctx context.Context, task string, payload []byte) error
	Close() error
}

// KafkaWriter abstracts the kafka producer for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time check to ensure KafkaPublisher implements Publisher
var _ Publisher = (*KafkaPublisher)(nil)

type KafkaPublisher struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewKafkaPublisher(writer KafkaWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// NewWriter builds the default kafka writer for task submission. Topic is
// set per message from the task name.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Submit publishes one task payload under the task's topic.
func (p *KafkaPublisher) Submit(ctx context.Context, task string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: task,
		Key:   []byte(task),
		Value: payload,
	})
	if err != nil {
		p.logger.Error("Task submit failed", zap.String("task", task), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
