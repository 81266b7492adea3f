package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaForwarder copies bus events to a Kafka topic keyed by session id.
type KafkaForwarder struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaForwarder(writer MessageWriter, logger *slog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger}
}

type envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt string      `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Data:       event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	key := event.EventID()
	if data, ok := event.Payload().(map[string]interface{}); ok {
		if sid, ok := data["session_id"].(string); ok && sid != "" {
			key = sid
		}
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s to kafka: %w", event.EventType(), err)
	}

	f.logger.Debug("event forwarded to kafka", "event_type", event.EventType(), "event_id", event.EventID())
	return nil
}

// Register subscribes the forwarder to every checkout event type.
func (f *KafkaForwarder) Register(bus *EventBus) {
	for _, t := range []string{EventTypeSessionInitialized, EventTypePaymentCompleted, EventTypePaymentFailed} {
		bus.Subscribe(t, f.Handle)
	}
}
