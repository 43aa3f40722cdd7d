package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"OneTapTip/internal/events"
)

// Publisher relays settled-transfer events to Kafka for downstream consumers.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    "tip_settled",
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionRef),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
