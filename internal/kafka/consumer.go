package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Consumer reads notification events for the worker. Messages that do
// not decode as NotificationEvent are skipped so one bad payload cannot
// wedge the group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			MaxWait:           time.Second,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume delivers decoded events to handler until ctx is cancelled or
// the reader fails. A handler error stops the loop.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, NotificationEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var event NotificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("WARNING: skipping undecodable notification at offset %d: %v", msg.Offset, err)
			continue
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
}
