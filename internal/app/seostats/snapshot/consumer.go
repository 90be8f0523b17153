package snapshot

import (
	"context"
	"log/slog"
	"time"

	"seostats.local/internal/platform/metrics"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Consumer 从 ChannelCollector 读快照，按条数或时间批量写入。
type Consumer struct {
	store     Store
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(store Store, collector *ChannelCollector) *Consumer {
	return &Consumer{
		store:     store,
		collector: collector,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
}

// Run 阻塞，ctx 结束或 collector 关闭后把剩余的刷掉再返回。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]Snapshot, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(c.store, "channel", batch)
			return
		case s, ok := <-c.collector.Snapshots():
			if !ok {
				flush(c.store, "channel", batch)
				return
			}
			batch = append(batch, s)
			if len(batch) >= c.batchSize {
				flush(c.store, "channel", batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(c.store, "channel", batch)
				batch = batch[:0]
			}
		}
	}
}

func flush(store Store, sink string, batch []Snapshot) {
	if len(batch) == 0 {
		return
	}

	// 调用方的 ctx 可能已经取消，落库单独给超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.InsertSnapshots(ctx, batch); err != nil {
		metrics.SnapshotsFlushed.WithLabelValues(sink, "error").Add(float64(len(batch)))
		slog.Error("snapshots: flush failed", "sink", sink, "count", len(batch), "err", err)
		return
	}
	metrics.SnapshotsFlushed.WithLabelValues(sink, "ok").Add(float64(len(batch)))
	slog.Debug("snapshots: flushed", "sink", sink, "count", len(batch))
}
