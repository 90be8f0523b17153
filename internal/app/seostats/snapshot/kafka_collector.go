package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Async:    true,
		},
	}
}

// Collect 以 target 作为 key，同一目标落在同一分区。
func (k *KafkaCollector) Collect(s Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		slog.Error("snapshot marshal failed", "err", err, "target", s.Target)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(s.Target),
		Value: data,
	}); err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
