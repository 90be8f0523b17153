package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/metrics"
)

type memStore struct {
	mu      sync.Mutex
	batches [][]Snapshot
	err     error
}

func (m *memStore) InsertSnapshots(_ context.Context, batch []Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Snapshot(nil), batch...))
	return m.err
}

func (m *memStore) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func snap(target string) Snapshot {
	return Snapshot{
		Target:    target,
		Cols:      mozscape.DomainAuthorityCols,
		Metrics:   mozscape.MetricRecord{"pda": 10.0},
		FetchedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestChannelCollector_DropsWhenFullAndCloseIsSafe(t *testing.T) {
	c := NewChannelCollector(1)
	c.Collect(snap("a.com"))
	c.Collect(snap("b.com"))

	if got := len(c.Snapshots()); got != 1 {
		t.Fatalf("buffered: got %d, want 1", got)
	}

	c.Close()
	c.Close()
	c.Collect(snap("c.com"))
}

func TestConsumer_FlushesBySize(t *testing.T) {
	store := &memStore{}
	c := NewChannelCollector(16)
	cons := NewConsumer(store, c)
	cons.batchSize = 3
	cons.interval = time.Hour

	before := testutil.ToFloat64(metrics.SnapshotsFlushed.WithLabelValues("channel", "ok"))

	done := make(chan struct{})
	go func() {
		cons.Run(context.Background())
		close(done)
	}()

	for _, tgt := range []string{"a.com", "b.com", "c.com", "d.com"} {
		c.Collect(snap(tgt))
	}
	c.Close()
	<-done

	if len(store.batches) != 2 {
		t.Fatalf("batches: got %d, want 2", len(store.batches))
	}
	if len(store.batches[0]) != 3 || store.batches[1][0].Target != "d.com" {
		t.Fatalf("batch contents: got %+v", store.batches)
	}
	if got := testutil.ToFloat64(metrics.SnapshotsFlushed.WithLabelValues("channel", "ok")); got != before+4 {
		t.Fatalf("flushed metric: got %v, want %v", got, before+4)
	}
}

func TestConsumer_FlushesOnTicker(t *testing.T) {
	store := &memStore{}
	c := NewChannelCollector(16)
	cons := NewConsumer(store, c)
	cons.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	c.Collect(snap("a.com"))

	deadline := time.Now().Add(2 * time.Second)
	for store.total() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ticker flush did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsumer_StoreErrorIsCounted(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	c := NewChannelCollector(4)
	cons := NewConsumer(store, c)

	before := testutil.ToFloat64(metrics.SnapshotsFlushed.WithLabelValues("channel", "error"))
	c.Collect(snap("a.com"))
	c.Close()
	cons.Run(context.Background())

	if got := testutil.ToFloat64(metrics.SnapshotsFlushed.WithLabelValues("channel", "error")); got != before+1 {
		t.Fatalf("error metric: got %v, want %v", got, before+1)
	}
}

func TestDecodeMessage_KeepsFullMask(t *testing.T) {
	in := snap("example.com")
	in.Cols = mozscape.FreeStatsCols
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeMessage(b)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if out.Cols != mozscape.FreeStatsCols || out.Target != "example.com" {
		t.Fatalf("got %+v", out)
	}
	if _, err := decodeMessage([]byte("{")); err == nil {
		t.Fatal("decodeMessage: want error for truncated json")
	}
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	d := minReadBackoff
	seen := []time.Duration{d}
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
		seen = append(seen, d)
	}
	if seen[1] != 2*minReadBackoff {
		t.Fatalf("second wait: got %v, want %v", seen[1], 2*minReadBackoff)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] || seen[i] > maxReadBackoff {
			t.Fatalf("wait[%d]: got %v (prev %v, max %v)", i, seen[i], seen[i-1], maxReadBackoff)
		}
	}
	if seen[len(seen)-1] != maxReadBackoff {
		t.Fatalf("last wait: got %v, want %v", seen[len(seen)-1], maxReadBackoff)
	}
}
