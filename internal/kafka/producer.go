package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer streams booking lifecycle events. Publishing is best-effort:
// callers log failures but never fail a booking over them.
type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{brokers: brokers, writer: writer}
}

// Publish writes one message to the given topic, keyed for per-booking
// ordering.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
