package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/kamir/giftbot/internal/event"
)

var _ Source = (*KafkaSource)(nil)

// KafkaSource reads events that an upstream indexer publishes, one JSON event
// per message, to a single partition. The message offset is the position.
type KafkaSource struct {
	brokers   []string
	topic     string
	partition int
}

// NewKafkaSource creates a source for topic/partition on brokers.
func NewKafkaSource(brokers []string, topic string, partition int) *KafkaSource {
	return &KafkaSource{
		brokers:   brokers,
		topic:     topic,
		partition: partition,
	}
}

func (s *KafkaSource) Open(ctx context.Context, kinds []event.Kind, from uint64) (Stream, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.brokers,
		Topic:     s.topic,
		Partition: s.partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})

	offset := kafka.FirstOffset
	if from > 0 {
		offset = int64(from)
	}
	if err := reader.SetOffset(offset); err != nil {
		reader.Close()
		return nil, fmt.Errorf("kafka source: set offset %d: %w", offset, err)
	}
	slog.Info("Kafka source opened", "topic", s.topic, "partition", s.partition, "offset", offset)

	return &kafkaStream{reader: reader, kinds: kinds}, nil
}

type kafkaStream struct {
	reader *kafka.Reader
	kinds  []event.Kind
}

func (k *kafkaStream) Next(ctx context.Context) (event.Event, error) {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			return event.Event{}, fmt.Errorf("kafka source: read: %w", err)
		}
		ev, err := DecodeKafkaEvent(msg.Value, msg.Offset)
		if err != nil {
			// A malformed message can never be handled; skip it rather than
			// stalling the stream at this offset forever.
			slog.Warn("Kafka source: skipping undecodable message", "offset", msg.Offset, "error", err)
			continue
		}
		if !event.HasKind(k.kinds, ev.Kind) {
			continue
		}
		return ev, nil
	}
}

func (k *kafkaStream) Close() error {
	return k.reader.Close()
}

// DecodeKafkaEvent decodes a message body and stamps offset as its position.
func DecodeKafkaEvent(value []byte, offset int64) (event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return event.Event{}, err
	}
	if ev.Kind == "" {
		return event.Event{}, fmt.Errorf("missing kind")
	}
	ev.Position = uint64(offset)
	return ev, nil
}
