package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// EnvelopeNotification is the envelope type of every notify message.
const EnvelopeNotification = "notification"

// Envelope is the wire format of messages published to Kafka.
type Envelope struct {
	Type          string  `json:"type"`
	CorrelationID string  `json:"correlation_id"`
	SenderID      string  `json:"sender_id"`
	Payload       Message `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notifications as JSON envelopes to a topic.
type KafkaSink struct {
	writer messageWriter
	sender string
}

// NewKafkaSink creates a sink writing to topic on brokers. sender identifies
// this bot in the envelope.
func NewKafkaSink(brokers []string, topic, sender string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		sender: sender,
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(Envelope{
		Type:          EnvelopeNotification,
		CorrelationID: msg.TraceID,
		SenderID:      k.sender,
		Payload:       msg,
	})
	if err != nil {
		return fmt.Errorf("kafka notify: encode: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(k.sender), Value: value}); err != nil {
		return fmt.Errorf("kafka notify: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
