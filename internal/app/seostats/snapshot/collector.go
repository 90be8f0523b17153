package snapshot

import (
	"context"
	"sync"
	"time"

	"seostats.local/internal/mozscape"
)

// Snapshot 一次上游查询里单个目标的结果
type Snapshot struct {
	Target    string                `json:"target"`
	Cols      mozscape.Column       `json:"cols"`
	Metrics   mozscape.MetricRecord `json:"metrics"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// Collector 收集快照，实现必须并发安全且不能阻塞调用方。
type Collector interface {
	Collect(s Snapshot)
	Close()
}

// Store 快照落库
type Store interface {
	InsertSnapshots(ctx context.Context, batch []Snapshot) error
}

// ChannelCollector 进程内 channel，满了直接丢。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan Snapshot
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{ch: make(chan Snapshot, bufferSize)}
}

func (c *ChannelCollector) Collect(s Snapshot) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- s:
	default:
	}
}

func (c *ChannelCollector) Snapshots() <-chan Snapshot {
	return c.ch
}

// Close 可以重复调用
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
