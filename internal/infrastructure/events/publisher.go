package events

import (
	"context"
	"fmt"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, events ...domain.OutboxEvent) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes events keyed by aggregate id, so events of one
// order stay in one partition and keep their order.
func NewKafkaPublisher(topic string, brokers ...string) Publisher {
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, events ...domain.OutboxEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msgs = append(msgs, toMessage(ev))
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// toMessage carries the event id in a header so consumers can drop
// redelivered events.
func toMessage(ev domain.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(ev.AggregateID.String()),
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID.String())},
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

