package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaGroupID = "metric-snapshots-consumer"

// 读失败后的等待时间，连续失败翻倍，成功一次复位
const (
	minReadBackoff = 100 * time.Millisecond
	maxReadBackoff = 5 * time.Second
)

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxReadBackoff {
		return maxReadBackoff
	}
	return d
}

type KafkaConsumer struct {
	reader    *kafka.Reader
	store     Store
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, store Store) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  kafkaGroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		store:     store,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	batch := make([]Snapshot, 0, k.batchSize)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	msgCh := make(chan Snapshot, k.batchSize)

	go func() {
		defer close(msgCh)
		backoff := minReadBackoff
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err, "retry_in", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}
			backoff = minReadBackoff
			s, err := decodeMessage(msg.Value)
			if err != nil {
				slog.Error("unmarshal snapshot failed", "err", err, "offset", msg.Offset)
				continue
			}
			select {
			case msgCh <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush(k.store, "kafka", batch)
			return
		case s, ok := <-msgCh:
			if !ok {
				flush(k.store, "kafka", batch)
				return
			}
			batch = append(batch, s)
			if len(batch) >= k.batchSize {
				flush(k.store, "kafka", batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(k.store, "kafka", batch)
				batch = batch[:0]
			}
		}
	}
}

func decodeMessage(b []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(b, &s)
	return s, err
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
